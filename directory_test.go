package fatstore

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func entryNames(records []Record) []string {
	var names []string
	for _, r := range records {
		names = append(names, r.Name())
	}
	return names
}

func addTestEntries(t *testing.T, d *Directory, names ...string) {
	t.Helper()
	for _, name := range names {
		h, err := NewEntry(name, AttrArchive, 0, 0, time.Date(2020, 1, 2, 3, 4, 6, 0, time.UTC))
		require.NoError(t, err)
		require.NoError(t, d.AddEntry(h))
	}
}

// newRootTestDirectory creates a fixed root directory on a mock device which contains the given records.
func newRootTestDirectory(t *testing.T, ctrl *gomock.Controller, records []Record, slots int) (*Directory, *MockBlockDevice) {
	t.Helper()
	for len(records) < slots {
		records = append(records, Record{Kind: RecordFree})
	}
	data, err := encodeRecords(records)
	require.NoError(t, err)

	dev := NewMockBlockDevice(ctrl)
	dev.EXPECT().ReadAt(gomock.Any(), int64(4096)).DoAndReturn(func(p []byte, off int64) (int, error) {
		return copy(p, data), nil
	})

	d, err := OpenRootDirectory(dev, 4096, slots, nil)
	require.NoError(t, err)
	return d, dev
}

func TestOpenRootDirectory_labelExtraction(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	d, _ := newRootTestDirectory(t, mockCtrl, []Record{
		{Kind: RecordEntry, Header: header("FIRST   TXT", AttrArchive)},
		{Kind: RecordLabel, Header: header("MY DISK    ", AttrVolumeID)},
		{Kind: RecordLongName, Header: header("Ax\x00y\x00", AttrLongName)},
		{Kind: RecordEntry, Header: header("SECOND  TXT", AttrArchive)},
		{Kind: RecordDeleted, Header: header("\xE5HIRD   TXT", AttrArchive)},
	}, 8)

	require.True(t, d.IsRoot())
	require.False(t, d.CanChangeSize())
	require.Equal(t, 8, d.Capacity())

	label, ok := d.Label()
	require.True(t, ok)
	require.Equal(t, "MY DISK", label)

	if diff := cmp.Diff([]string{"FIRST.TXT", "SECOND.TXT"}, entryNames(d.Entries())); diff != "" {
		t.Errorf("Directory.Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectory_SetLabel(t *testing.T) {
	// Hidden, read only and system together with the label bit alone would be a long name record.
	protected := header("PROTECTED  ", AttrVolumeID|AttrHidden|AttrReadOnly|AttrSystem|AttrArchive)

	tests := []struct {
		name    string
		records []Record
		label   string
		// wantSlot is the slot expected to contain the label afterwards, -1 for none.
		wantSlot  int
		wantLabel string
		wantOK    bool
		wantErr   error
	}{
		{
			name:      "new label uses the first free slot",
			records:   []Record{{Kind: RecordEntry, Header: header("FILE    TXT", 0)}},
			label:     "A Volume",
			wantSlot:  1,
			wantLabel: "A Volume",
			wantOK:    true,
		},
		{
			name:      "existing label is reused",
			records:   []Record{{Kind: RecordEntry, Header: header("FILE    TXT", 0)}, {Kind: RecordLabel, Header: header("OLD        ", AttrVolumeID)}},
			label:     "NEW LABEL 1",
			wantSlot:  1,
			wantLabel: "NEW LABEL 1",
			wantOK:    true,
		},
		{
			name:     "empty label removes it",
			records:  []Record{{Kind: RecordLabel, Header: header("OLD        ", AttrVolumeID)}},
			label:    "",
			wantSlot: -1,
		},
		{
			name:     "empty label without label",
			records:  []Record{{Kind: RecordEntry, Header: header("FILE    TXT", 0)}},
			label:    "",
			wantSlot: -1,
		},
		{
			name:      "label is too long",
			records:   []Record{{Kind: RecordLabel, Header: header("OLD        ", AttrVolumeID)}},
			label:     "much too long",
			wantSlot:  0,
			wantLabel: "OLD",
			wantOK:    true,
			wantErr:   ErrInvalidLabel,
		},
		{
			name:     "full root directory",
			records:  []Record{{Kind: RecordEntry, Header: header("A          ", 0)}, {Kind: RecordEntry, Header: header("B          ", 0)}},
			label:    "LABEL",
			wantSlot: -1,
			wantErr:  ErrDirectoryFull,
		},
		{
			name:      "first label record is the label even if protected",
			records:   []Record{{Kind: RecordLabel, Header: protected}},
			label:     "LABEL",
			wantSlot:  0,
			wantLabel: "LABEL",
			wantOK:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			defer mockCtrl.Finish()

			d, _ := newRootTestDirectory(t, mockCtrl, tt.records, 2)

			err := d.SetLabel(tt.label)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Directory.SetLabel() error = %v, wantErr %v", err, tt.wantErr)
			}

			label, ok := d.Label()
			if ok != tt.wantOK || label != tt.wantLabel {
				t.Errorf("Directory.Label() = %q, %v, want %q, %v", label, ok, tt.wantLabel, tt.wantOK)
			}
			if d.labelSlot != tt.wantSlot {
				t.Errorf("label slot = %v, want %v", d.labelSlot, tt.wantSlot)
			}
		})
	}
}

func TestDirectory_SetLabel_skipsProtectedLabel(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	protected := Record{Kind: RecordLabel, Header: header("PROTECTED  ", AttrVolumeID|AttrHidden|AttrReadOnly|AttrSystem|AttrArchive)}
	d, _ := newRootTestDirectory(t, mockCtrl, []Record{
		{Kind: RecordLabel, Header: header("OLD        ", AttrVolumeID)},
		protected,
	}, 3)

	loaded := d.Records()[1]
	require.Equal(t, RecordLabel, loaded.Kind)
	require.True(t, loaded.isProtectedLabel())
	require.Equal(t, 0, d.labelSlot)

	require.NoError(t, d.SetLabel(""))
	require.NoError(t, d.SetLabel("NEW"))

	records := d.Records()
	require.Equal(t, RecordLabel, records[0].Kind)
	require.Equal(t, "NEW", records[0].Name())
	require.Equal(t, AttrVolumeID, records[0].Header.Attribute)
	if diff := cmp.Diff(protected, records[1]); diff != "" {
		t.Errorf("protected label was changed (-want +got):\n%s", diff)
	}
}

func TestDirectory_SetLabel_nonRoot(t *testing.T) {
	vol, _ := newTestChain(t, FAT16)
	d := newSubdirectory(t, vol)
	addTestEntries(t, d, "a.txt")

	err := d.SetLabel("LABEL")
	require.ErrorIs(t, err, ErrNotSupported)

	_, ok := d.Label()
	require.False(t, ok)
	require.False(t, d.IsRoot())
	if diff := cmp.Diff([]string{"A.TXT"}, entryNames(d.Entries())); diff != "" {
		t.Errorf("Directory.Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectory_Flush_fixedRoot(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	d, dev := newRootTestDirectory(t, mockCtrl, []Record{
		{Kind: RecordLabel, Header: header("OLD        ", AttrVolumeID)},
	}, 4)

	require.NoError(t, d.SetLabel(""))
	addTestEntries(t, d, "new.txt")
	require.True(t, d.IsDirty())

	var written []byte
	dev.EXPECT().WriteAt(gomock.Any(), int64(4096)).DoAndReturn(func(p []byte, off int64) (int, error) {
		written = append([]byte(nil), p...)
		return len(p), nil
	})
	require.NoError(t, d.Flush())
	require.False(t, d.IsDirty())

	require.Len(t, written, 4*RecordSize)
	// The old label slot is free now and got reused by the new entry.
	require.Equal(t, "NEW     TXT", string(written[:11]))
	require.Equal(t, byte(0), written[RecordSize])

	dev.EXPECT().WriteAt(gomock.Any(), int64(4096)).Return(0, errDevice)
	addTestEntries(t, d, "other.txt")
	require.ErrorIs(t, d.Flush(), errDevice)
	require.True(t, d.IsDirty())
}

func TestDirectory_Flush_clearedLabelIsDeleted(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	d, dev := newRootTestDirectory(t, mockCtrl, []Record{
		{Kind: RecordEntry, Header: header("FILE    TXT", 0)},
		{Kind: RecordLabel, Header: header("OLD        ", AttrVolumeID)},
	}, 4)
	require.NoError(t, d.SetLabel(""))

	var written []byte
	dev.EXPECT().WriteAt(gomock.Any(), int64(4096)).DoAndReturn(func(p []byte, off int64) (int, error) {
		written = append([]byte(nil), p...)
		return len(p), nil
	})
	require.NoError(t, d.Flush())
	require.Equal(t, byte(markerDeleted), written[RecordSize])
}

func TestDirectory_AddEntry_full(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	d, _ := newRootTestDirectory(t, mockCtrl, nil, 2)
	addTestEntries(t, d, "a.txt", "b.txt")

	h, err := NewEntry("c.txt", AttrArchive, 0, 0, time.Now())
	require.NoError(t, err)

	err = d.AddEntry(h)
	require.ErrorIs(t, err, ErrDirectoryFull)
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestDirectory_entryOperations(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	d, _ := newRootTestDirectory(t, mockCtrl, nil, 8)
	addTestEntries(t, d, "a.txt", "b.txt", "c.txt")

	h, err := NewEntry("A.TXT", AttrArchive, 0, 0, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, d.AddEntry(h), fs.ErrExist)

	label := EntryHeader{Attribute: AttrVolumeID}
	copy(label.Name[:], "LABEL      ")
	require.ErrorIs(t, d.AddEntry(label), ErrNotSupported)

	r, ok := d.Lookup("b.TXT")
	require.True(t, ok)
	require.Equal(t, "B.TXT", r.Name())

	removed, err := d.RemoveEntry("b.txt")
	require.NoError(t, err)
	require.Equal(t, "B.TXT", removed.Name())
	_, ok = d.Lookup("b.txt")
	require.False(t, ok)
	_, err = d.RemoveEntry("b.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)

	// The deleted slot is reused.
	addTestEntries(t, d, "d.txt")
	require.Equal(t, []string{"A.TXT", "D.TXT", "C.TXT"}, entryNames(d.Entries()))

	require.NoError(t, d.RenameEntry("c.txt", "e.dat"))
	require.ErrorIs(t, d.RenameEntry("c.txt", "f.dat"), fs.ErrNotExist)
	require.ErrorIs(t, d.RenameEntry("a.txt", "e.dat"), fs.ErrExist)
	require.ErrorIs(t, d.RenameEntry("a.txt", "invalid name.txt"), fs.ErrInvalid)
	require.NoError(t, d.RenameEntry("a.txt", "A.txt"))

	updated, ok := d.Lookup("e.dat")
	require.True(t, ok)
	updated.Header.FileSize = 1234
	require.NoError(t, d.UpdateEntry(updated.Header))
	updated, _ = d.Lookup("e.dat")
	require.Equal(t, uint32(1234), updated.Header.FileSize)

	var names []string
	for _, e := range d.ReadDir() {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"A.TXT", "D.TXT", "E.DAT"}, names)
}

func newSubdirectory(t *testing.T, vol *Fs) *Directory {
	t.Helper()
	chain, err := vol.OpenChain(0)
	require.NoError(t, err)

	d, err := OpenDirectory(chain, vol.BootSector().RootCluster(), nil)
	require.NoError(t, err)
	return d
}

func TestDirectory_chainRoundTrip(t *testing.T) {
	vol, _ := newTestChain(t, FAT16)
	d := newSubdirectory(t, vol)
	require.True(t, d.CanChangeSize())
	require.Equal(t, 0, d.Capacity())

	perCluster := int(vol.BootSector().ClusterSize() / RecordSize)
	var names []string
	for i := 0; i < perCluster+1; i++ {
		names = append(names, fmt.Sprintf("file%d.txt", i))
	}
	addTestEntries(t, d, names...)
	require.NoError(t, d.Flush())

	n, err := d.Chain().ChainLength()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2*perCluster, d.Capacity())

	reopened, err := vol.OpenDirectory(d.Chain().StartCluster())
	require.NoError(t, err)
	if diff := cmp.Diff(d.Entries(), reopened.Entries()); diff != "" {
		t.Errorf("entries after reopening mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(d.Records(), reopened.Records()); diff != "" {
		t.Errorf("records after reopening mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectory_Flush_clearsNewClusters(t *testing.T) {
	vol, _ := newTestChain(t, FAT16)
	d := newSubdirectory(t, vol)
	addTestEntries(t, d, "first.txt")
	require.NoError(t, d.Flush())

	// Fill the cluster the directory gets next with something looking like entries.
	ctx := vol.ChainContext()
	next := vol.fat.LastAllocated() + 1
	garbage := make([]byte, ctx.ClusterSize)
	for i := range garbage {
		garbage[i] = 'X'
	}
	require.NoError(t, writeFull(ctx.Device, ctx.DataOffset+int64(next-firstCluster)*ctx.ClusterSize, garbage))

	perCluster := int(ctx.ClusterSize / RecordSize)
	var names []string
	for i := 0; i < perCluster; i++ {
		names = append(names, fmt.Sprintf("more%d.txt", i))
	}
	addTestEntries(t, d, names...)
	require.NoError(t, d.Flush())

	chain, err := vol.fat.Chain(d.Chain().StartCluster())
	require.NoError(t, err)
	require.Equal(t, next, chain[1])

	reopened, err := vol.OpenDirectory(d.Chain().StartCluster())
	require.NoError(t, err)
	require.Len(t, reopened.Entries(), perCluster+1)
}

func TestDirectory_concurrentAddEntry(t *testing.T) {
	vol, _ := newTestChain(t, FAT32)
	d := newSubdirectory(t, vol)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := NewEntry(fmt.Sprintf("f%d.txt", i), AttrArchive, 0, 0, time.Now())
			if err != nil {
				t.Error(err)
				return
			}
			if err := d.AddEntry(h); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, d.Entries(), 20)
	require.NoError(t, d.Flush())
	require.False(t, d.IsDirty())
}
