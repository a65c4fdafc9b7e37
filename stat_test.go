package fatstore

import (
	"io/fs"
	"reflect"
	"testing"
	"time"
)

func TestRecord_FileInfo(t *testing.T) {
	file := header("HELLO   TXT", AttrArchive)
	file.FileSize = 1234
	file.WriteTime = 41936
	file.WriteDate = 20890

	info := Record{Kind: RecordEntry, Header: file}.FileInfo()
	if info.Name() != "HELLO.TXT" {
		t.Errorf("Name() = %v, want %v", info.Name(), "HELLO.TXT")
	}
	if info.Size() != 1234 {
		t.Errorf("Size() = %v, want %v", info.Size(), 1234)
	}
	if info.IsDir() {
		t.Errorf("IsDir() = %v, want %v", info.IsDir(), false)
	}
	if want := time.Date(2020, 12, 26, 20, 30, 32, 0, time.UTC); !info.ModTime().Equal(want) {
		t.Errorf("ModTime() = %v, want %v", info.ModTime(), want)
	}
}

func Test_recordFileInfo_Mode(t *testing.T) {
	type fields struct {
		attr byte
	}
	tests := []struct {
		name   string
		fields fields
		want   fs.FileMode
	}{
		{
			name:   "a normal file",
			fields: fields{attr: AttrArchive},
			want:   0666,
		},
		{
			name:   "a read only file",
			fields: fields{attr: AttrReadOnly},
			want:   0444,
		},
		{
			name:   "a directory",
			fields: fields{attr: AttrDirectory},
			want:   0777 | fs.ModeDir,
		},
		{
			name:   "a read only directory",
			fields: fields{attr: AttrDirectory | AttrReadOnly},
			want:   0555 | fs.ModeDir,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := recordFileInfo{record: Record{Kind: RecordEntry, Header: header("NAME       ", tt.fields.attr)}}
			if got := e.Mode(); got != tt.want {
				t.Errorf("recordFileInfo.Mode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_recordFileInfo_ModTime(t *testing.T) {
	type fields struct {
		writeTime uint16
		writeDate uint16
	}
	tests := []struct {
		name   string
		fields fields
		want   time.Time
	}{
		{
			name:   "a normal write time and date",
			fields: fields{writeTime: 41936, writeDate: 20890},
			want:   time.Date(2020, 12, 26, 20, 30, 32, 0, time.UTC),
		},
		{
			name:   "a zero write time and date results in time.Time.IsZero() == true",
			fields: fields{},
			want:   time.Time{},
		},
		{
			name:   "a zero write time results in midnight",
			fields: fields{writeDate: 20890},
			want:   time.Date(2020, 12, 26, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "a zero write date results in time.Time.IsZero() == true",
			fields: fields{writeTime: 41936},
			want:   time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := header("NAME       ", AttrArchive)
			h.WriteTime = tt.fields.writeTime
			h.WriteDate = tt.fields.writeDate

			e := recordFileInfo{record: Record{Kind: RecordEntry, Header: h}}
			if got := e.ModTime(); !got.Equal(tt.want) {
				t.Errorf("recordFileInfo.ModTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_recordFileInfo_Sys(t *testing.T) {
	r := Record{Kind: RecordEntry, Header: header("NAME       ", AttrArchive)}
	if got := (recordFileInfo{record: r}).Sys(); !reflect.DeepEqual(got, r) {
		t.Errorf("recordFileInfo.Sys() = %v, want %v", got, r)
	}
}

func TestDirEntry(t *testing.T) {
	r := Record{Kind: RecordEntry, Header: header("SUB        ", AttrDirectory)}
	entry := DirEntry{r.FileInfo()}

	if entry.Name() != "SUB" {
		t.Errorf("DirEntry.Name() = %v, want %v", entry.Name(), "SUB")
	}
	if !entry.IsDir() {
		t.Errorf("DirEntry.IsDir() = %v, want %v", entry.IsDir(), true)
	}
	if entry.Type() != fs.ModeDir {
		t.Errorf("DirEntry.Type() = %v, want %v", entry.Type(), fs.ModeDir)
	}

	info, err := entry.Info()
	if err != nil {
		t.Fatalf("DirEntry.Info() error = %v", err)
	}
	if info.Mode() != r.FileInfo().Mode() {
		t.Errorf("DirEntry.Info().Mode() = %v, want %v", info.Mode(), r.FileInfo().Mode())
	}
}
