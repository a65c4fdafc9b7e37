package fatstore

import (
	"io/fs"
	"time"
)

// FileInfo returns a fs.FileInfo view of the record.
func (r Record) FileInfo() fs.FileInfo {
	return recordFileInfo{r}
}

type recordFileInfo struct {
	record Record
}

func (e recordFileInfo) Name() string {
	return e.record.Name()
}

func (e recordFileInfo) Size() int64 {
	return int64(e.record.Header.FileSize)
}

func (e recordFileInfo) Mode() fs.FileMode {
	mode := fs.FileMode(0666)
	if e.record.Header.Attribute&AttrReadOnly != 0 {
		mode = 0444
	}

	if e.IsDir() {
		return mode | 0111 | fs.ModeDir
	}
	return mode
}

func (e recordFileInfo) ModTime() time.Time {
	// For the time alone IsZero() is perfectly valid, so only the date can tell if it is invalid.
	return ParseDateTime(e.record.Header.WriteDate, e.record.Header.WriteTime)
}

func (e recordFileInfo) IsDir() bool {
	return e.record.Header.Attribute&AttrDirectory == AttrDirectory
}

// Sys returns the Record.
func (e recordFileInfo) Sys() interface{} {
	return e.record
}

// DirEntry adapts a fs.FileInfo to fs.DirEntry.
type DirEntry struct {
	fs.FileInfo
}

func (d DirEntry) Type() fs.FileMode {
	return d.FileInfo.Mode().Type()
}

func (d DirEntry) Info() (fs.FileInfo, error) {
	return d.FileInfo, nil
}
