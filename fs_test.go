package fatstore

import (
	"bytes"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func mountTestVolume(t *testing.T, dev BlockDevice, opts ...Option) *Fs {
	t.Helper()
	vol, err := New(dev, opts...)
	require.NoError(t, err)
	return vol
}

func freeClusters(t *testing.T, vol *Fs) int {
	t.Helper()
	free, err := vol.FreeClusters()
	require.NoError(t, err)
	return free
}

func TestNew(t *testing.T) {
	t.Run("no FAT volume", func(t *testing.T) {
		dev, err := NewMemDevice(1024 * 1024)
		require.NoError(t, err)
		require.NoError(t, writeFull(dev, 0, []byte("This is no FAT volume")))

		_, err = New(dev)
		require.ErrorIs(t, err, ErrInvalidBootSector)
	})

	t.Run("image file", func(t *testing.T) {
		osFs := afero.NewMemMapFs()
		dev, err := CreateFileDevice(osFs, "disk.img", 8*1024*1024)
		require.NoError(t, err)
		require.NoError(t, Format(dev, dev.Size(), FormatConfig{Label: "IMAGE"}))
		require.NoError(t, dev.Close())

		dev, err = OpenFileDevice(osFs, "disk.img", true)
		require.NoError(t, err)
		defer dev.Close()

		vol := mountTestVolume(t, dev, ReadOnly())
		require.Equal(t, FAT16, vol.FSType())
		require.True(t, vol.IsReadOnly())
		require.Equal(t, "IMAGE", vol.Label())
	})

	t.Run("logs the mount", func(t *testing.T) {
		dev, _ := formatTestDevice(t, FAT12, FormatConfig{})
		core, logs := observer.New(zap.DebugLevel)

		mountTestVolume(t, dev, WithLogger(zap.New(core)))
		require.Equal(t, 1, logs.FilterMessage("mounted volume").Len())
	})
}

func TestFs_VolumeLabel(t *testing.T) {
	dev, bs := formatTestDevice(t, FAT16, FormatConfig{})
	require.Equal(t, DefaultVolumeLabel, bs.VolumeLabel())

	vol := mountTestVolume(t, dev)
	require.Equal(t, DefaultVolumeLabel, vol.Label())

	_, ok := vol.Root().Label()
	require.False(t, ok, "a new volume has no label record")

	require.ErrorIs(t, vol.SetLabel("this is too long"), ErrInvalidLabel)
	require.ErrorIs(t, vol.SetLabel(" invalid"), ErrInvalidLabel)

	require.NoError(t, vol.SetLabel("A Volume"))
	require.Equal(t, "A Volume", vol.Label())
	require.Equal(t, "A Volume", vol.BootSector().VolumeLabel())

	label, ok := vol.Root().Label()
	require.True(t, ok)
	require.Equal(t, "A Volume", label)

	require.NoError(t, vol.Close())

	// The label survives a remount.
	reopened := mountTestVolume(t, dev, ReadOnly())
	require.Equal(t, "A Volume", reopened.Label())
	require.Equal(t, "A Volume", reopened.BootSector().VolumeLabel())

	label, ok = reopened.Root().Label()
	require.True(t, ok)
	require.Equal(t, "A Volume", label)

	require.ErrorIs(t, reopened.SetLabel("OTHER"), ErrReadOnly)
	require.Equal(t, "A Volume", reopened.Label())
}

func TestFs_SetLabel(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		wantLabel string
		wantErr   error
	}{
		{name: "upper case", label: "DATA", wantLabel: "DATA"},
		{name: "lower case is kept", label: "data 1", wantLabel: "data 1"},
		{name: "full length", label: "ABCDEFGHIJK", wantLabel: "ABCDEFGHIJK"},
		{name: "code page 437", label: "MüLL", wantLabel: "MüLL"},
		{name: "leading space", label: " DATA", wantErr: ErrInvalidLabel},
		{name: "dot", label: "DATA.1", wantErr: ErrInvalidLabel},
		{name: "colon", label: "C:", wantErr: ErrInvalidLabel},
		{name: "asterisk", label: "DATA*", wantErr: ErrInvalidLabel},
		{name: "backslash", label: `A\B`, wantErr: ErrInvalidLabel},
		{name: "control character", label: "A\tB", wantErr: ErrInvalidLabel},
		{name: "too long", label: "ABCDEFGHIJKL", wantErr: ErrInvalidLabel},
		{name: "not in code page 437", label: "日本", wantErr: ErrInvalidLabel},
	}
	for _, fatType := range []FATType{FAT12, FAT16, FAT32} {
		for _, tt := range tests {
			t.Run(fatType.String()+"/"+tt.name, func(t *testing.T) {
				dev, _ := formatTestDevice(t, fatType, FormatConfig{})
				vol := mountTestVolume(t, dev)

				err := vol.SetLabel(tt.label)
				require.ErrorIs(t, err, tt.wantErr)
				require.NoError(t, vol.Close())

				want := tt.wantLabel
				if tt.wantErr != nil {
					want = DefaultVolumeLabel
				}
				require.Equal(t, want, mountTestVolume(t, dev).Label())
			})
		}
	}
}

func TestFs_SetLabel_clear(t *testing.T) {
	for _, fatType := range []FATType{FAT12, FAT16, FAT32} {
		t.Run(fatType.String(), func(t *testing.T) {
			dev, _ := formatTestDevice(t, fatType, FormatConfig{Label: "BACKUP"})

			vol := mountTestVolume(t, dev)
			require.Equal(t, "BACKUP", vol.Label())
			require.NoError(t, vol.SetLabel(""))
			require.Equal(t, DefaultVolumeLabel, vol.Label())
			require.NoError(t, vol.Close())

			reopened := mountTestVolume(t, dev)
			require.Equal(t, DefaultVolumeLabel, reopened.Label())
			require.Equal(t, DefaultVolumeLabel, reopened.BootSector().VolumeLabel())

			_, ok := reopened.Root().Label()
			require.False(t, ok)

			// The old label record is deleted, not a free end marker.
			records := reopened.Root().Records()
			require.Equal(t, RecordDeleted, records[0].Kind)
		})
	}
}

func TestFs_SetLabel_keepsEntries(t *testing.T) {
	dev, _ := formatTestDevice(t, FAT16, FormatConfig{})
	vol := mountTestVolume(t, dev)
	addTestEntries(t, vol.Root(), "a.txt", "b.txt")

	require.NoError(t, vol.SetLabel("DATA"))
	require.NoError(t, vol.Close())

	reopened := mountTestVolume(t, dev)
	require.Equal(t, []string{"A.TXT", "B.TXT"}, entryNames(reopened.Root().Entries()))
	require.Equal(t, "DATA", reopened.Label())
}

func TestFs_Files(t *testing.T) {
	for _, fatType := range []FATType{FAT12, FAT16, FAT32} {
		t.Run(fatType.String(), func(t *testing.T) {
			dev, bs := formatTestDevice(t, fatType, FormatConfig{})
			vol := mountTestVolume(t, dev)
			freeBefore := freeClusters(t, vol)

			content := bytes.Repeat([]byte("fatstore "), 200)
			file, err := vol.CreateFile()
			require.NoError(t, err)
			_, err = file.Write(content)
			require.NoError(t, err)

			h, err := NewEntry("data.txt", AttrArchive, file.StartCluster(), uint32(file.Size()), time.Date(2022, 5, 6, 7, 8, 10, 0, time.UTC))
			require.NoError(t, err)
			require.NoError(t, vol.Root().AddEntry(h))
			require.NoError(t, vol.Close())

			reopened := mountTestVolume(t, dev, ReadOnly())
			clusters := int((int64(len(content)) + bs.ClusterSize() - 1) / bs.ClusterSize())
			require.Equal(t, freeBefore-clusters, freeClusters(t, reopened))

			record, ok := reopened.Root().Lookup("DATA.TXT")
			require.True(t, ok)

			file, err = reopened.OpenFile(record.Header.FirstCluster(), int64(record.Header.FileSize))
			require.NoError(t, err)

			got := make([]byte, len(content))
			_, err = file.Read(got)
			require.NoError(t, err)
			require.Equal(t, content, got)

			_, err = reopened.OpenFile(record.Header.FirstCluster(), int64(clusters)*bs.ClusterSize()+1)
			require.ErrorIs(t, err, ErrOutOfRange)

			_, err = reopened.CreateFile()
			require.ErrorIs(t, err, ErrReadOnly)
		})
	}
}

func TestFs_OpenDirectory(t *testing.T) {
	dev, _ := formatTestDevice(t, FAT32, FormatConfig{})
	vol := mountTestVolume(t, dev)

	root, err := vol.OpenDirectory(vol.BootSector().RootCluster())
	require.NoError(t, err)
	require.Same(t, vol.Root(), root)

	sub, err := vol.OpenDirectory(0)
	require.NoError(t, err)
	require.False(t, sub.IsRoot())
	addTestEntries(t, sub, "nested.txt")

	// The volume flushes the directory as it was opened through it.
	require.NoError(t, vol.Flush())
	require.False(t, sub.IsDirty())

	cluster := sub.Chain().StartCluster()
	require.NotZero(t, cluster)

	reread, err := vol.OpenDirectory(cluster)
	require.NoError(t, err)
	require.Equal(t, []string{"NESTED.TXT"}, entryNames(reread.Entries()))
}

func TestFs_FSInfo(t *testing.T) {
	dev, bs := formatTestDevice(t, FAT32, FormatConfig{})
	vol := mountTestVolume(t, dev)

	file, err := vol.CreateFile()
	require.NoError(t, err)
	require.NoError(t, file.Truncate(3*bs.ClusterSize()))
	require.NoError(t, vol.Flush())

	info, err := bs.ReadFSInfo(dev)
	require.NoError(t, err)
	require.Equal(t, uint32(freeClusters(t, vol)), info.FreeCount)
	require.Equal(t, bs.ClusterCount()-4, info.FreeCount)
}

func TestFs_FSInfo_invalid(t *testing.T) {
	dev, bs := formatTestDevice(t, FAT32, FormatConfig{})
	require.NoError(t, writeFull(dev, int64(bs.FAT32.FSInfo)*int64(bs.BytesPerSector), make([]byte, bootSectorSize)))

	core, logs := observer.New(zap.WarnLevel)
	vol := mountTestVolume(t, dev, WithLogger(zap.New(core)))
	require.NoError(t, vol.Flush())
	require.Equal(t, 1, logs.FilterMessage("replacing invalid FSInfo sector").Len())

	info, err := bs.ReadFSInfo(dev)
	require.NoError(t, err)
	require.Equal(t, uint32(freeClusters(t, vol)), info.FreeCount)
}

func TestFs_Close(t *testing.T) {
	dev, _ := formatTestDevice(t, FAT12, FormatConfig{})
	vol := mountTestVolume(t, dev)
	require.NoError(t, vol.Close())

	require.ErrorIs(t, vol.Close(), fs.ErrClosed)
	require.ErrorIs(t, vol.Flush(), fs.ErrClosed)
	require.ErrorIs(t, vol.SetLabel("DATA"), fs.ErrClosed)

	_, err := vol.FreeClusters()
	require.ErrorIs(t, err, fs.ErrClosed)
	_, err = vol.OpenDirectory(0)
	require.ErrorIs(t, err, fs.ErrClosed)
	_, err = vol.OpenFile(0, 0)
	require.ErrorIs(t, err, fs.ErrClosed)
	_, err = vol.CreateFile()
	require.ErrorIs(t, err, fs.ErrClosed)
}

func TestFs_readOnlyFlush(t *testing.T) {
	dev, _ := formatTestDevice(t, FAT16, FormatConfig{})
	before := make([]byte, 64*1024)
	require.NoError(t, readFull(dev, 0, before))

	vol := mountTestVolume(t, dev, ReadOnly())
	require.NoError(t, vol.Flush())
	require.NoError(t, vol.Close())

	after := make([]byte, len(before))
	require.NoError(t, readFull(dev, 0, after))
	require.Equal(t, before, after)
}

func TestFs_OpenDirectory_sameCluster(t *testing.T) {
	for _, fatType := range []FATType{FAT16, FAT32} {
		t.Run(fatType.String(), func(t *testing.T) {
			dev, _ := formatTestDevice(t, fatType, FormatConfig{})
			vol := mountTestVolume(t, dev)

			sub, err := vol.OpenDirectory(0)
			require.NoError(t, err)
			addTestEntries(t, sub, "first.txt")
			require.NoError(t, vol.Flush())
			cluster := sub.Chain().StartCluster()
			tracked := len(vol.dirs)

			again, err := vol.OpenDirectory(cluster)
			require.NoError(t, err)
			require.Same(t, sub, again)
			require.Len(t, vol.dirs, tracked)

			// Changes through both handles end up on disk.
			addTestEntries(t, sub, "second.txt")
			addTestEntries(t, again, "third.txt")
			require.NoError(t, vol.Close())

			reopened := mountTestVolume(t, dev, ReadOnly())
			reread, err := reopened.OpenDirectory(cluster)
			require.NoError(t, err)
			require.Equal(t, []string{"FIRST.TXT", "SECOND.TXT", "THIRD.TXT"}, entryNames(reread.Entries()))
		})
	}
}

func TestFs_Close_concurrent(t *testing.T) {
	dev, _ := formatTestDevice(t, FAT16, FormatConfig{})
	vol := mountTestVolume(t, dev)

	var wg sync.WaitGroup
	errs := make(chan error, 300)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := vol.CreateFile()
			errs <- err
			_, err = vol.OpenFile(0, 0)
			errs <- err
			_, err = vol.FreeClusters()
			errs <- err
		}()
	}
	require.NoError(t, vol.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, fs.ErrClosed)
		}
	}
}
