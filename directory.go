package fatstore

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/aligator/fatstore/checkpoint"
	"go.uber.org/zap"
)

// Directory is the in-memory record array of a directory together with its backing storage.
// The storage is either a ClusterChain or, for the root directory of FAT12 and FAT16,
// a fixed region of the device which cannot change its size.
//
// The first record marked as volume label is not part of Entries, use Label and SetLabel instead.
// Changes are kept in memory until Flush is called.
type Directory struct {
	mu sync.Mutex

	chain *ClusterChain

	// dev and offset are only used for a root directory without chain.
	dev    BlockDevice
	offset int64

	root    bool
	records []Record
	// labelSlot is the index of the label record in records or -1.
	labelSlot int
	dirty     bool

	logger *zap.Logger
}

// OpenDirectory reads the directory stored in chain.
// rootCluster is the root cluster of a FAT32 volume. The directory is the root if its chain starts there.
func OpenDirectory(chain *ClusterChain, rootCluster uint32, logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Directory{
		chain:     chain,
		root:      rootCluster != 0 && chain.StartCluster() == rootCluster,
		labelSlot: -1,
		logger:    logger,
	}

	size, err := chain.LengthOnDisk()
	if err != nil {
		return nil, err
	}

	data := make([]byte, size/RecordSize*RecordSize)
	if err := chain.ReadData(0, data); err != nil {
		return nil, err
	}

	if err := d.load(data); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenRootDirectory reads the fixed root directory of a FAT12 or FAT16 volume.
func OpenRootDirectory(dev BlockDevice, offset int64, entries int, logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Directory{
		dev:       dev,
		offset:    offset,
		root:      true,
		labelSlot: -1,
		logger:    logger,
	}

	data := make([]byte, entries*RecordSize)
	if err := readFull(dev, offset, data); err != nil {
		return nil, err
	}

	if err := d.load(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) load(data []byte) error {
	records, err := decodeRecords(data)
	if err != nil {
		return err
	}

	d.records = records
	d.labelSlot = -1
	for i, r := range records {
		if r.Kind == RecordLabel {
			d.labelSlot = i
			break
		}
	}
	d.dirty = false
	return nil
}

// IsRoot reports whether this is the root directory of the volume.
func (d *Directory) IsRoot() bool {
	return d.root
}

// Chain returns the backing chain. It is nil for the fixed root directory.
func (d *Directory) Chain() *ClusterChain {
	return d.chain
}

// CanChangeSize reports whether the directory may grow, which is only possible with a backing chain.
func (d *Directory) CanChangeSize() bool {
	return d.chain != nil
}

// IsDirty reports changes which are not flushed yet.
func (d *Directory) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Capacity returns the number of record slots currently held in memory.
func (d *Directory) Capacity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Records returns a copy of all slots in on-disk order, including the label and free slots.
func (d *Directory) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Record, len(d.records))
	copy(result, d.records)
	return result
}

// Entries returns the regular entries in on-disk order.
// The label, free, deleted and long name records are skipped.
func (d *Directory) Entries() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []Record
	for i, r := range d.records {
		if i == d.labelSlot || r.Kind != RecordEntry {
			continue
		}
		result = append(result, r)
	}
	return result
}

// ReadDir returns the entries as fs.DirEntry, without "." and "..".
func (d *Directory) ReadDir() []fs.DirEntry {
	var result []fs.DirEntry
	for _, r := range d.Entries() {
		if name := r.Name(); name == "." || name == ".." {
			continue
		}
		result = append(result, DirEntry{r.FileInfo()})
	}
	return result
}

func (d *Directory) lookup(name string) int {
	for i, r := range d.records {
		if i != d.labelSlot && r.Kind == RecordEntry && strings.EqualFold(r.Name(), name) {
			return i
		}
	}
	return -1
}

// Lookup searches an entry by its name, ignoring the case.
func (d *Directory) Lookup(name string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.lookup(name)
	if i < 0 {
		return Record{}, false
	}
	return d.records[i], true
}

// allocSlot returns the index of a free or deleted slot and appends one if there is none.
func (d *Directory) allocSlot() (int, error) {
	for i, r := range d.records {
		if r.Kind == RecordFree || r.Kind == RecordDeleted {
			return i, nil
		}
	}

	if !d.CanChangeSize() {
		return 0, checkpoint.Wrap(ErrDirectoryFull, fmt.Errorf("all %d slots are in use", len(d.records)))
	}

	d.records = append(d.records, Record{Kind: RecordFree})
	return len(d.records) - 1, nil
}

// AddEntry stores a new regular entry in the first unused slot.
// It returns fs.ErrExist if an entry with the same name exists
// and ErrDirectoryFull if the fixed root directory has no unused slot.
func (d *Directory) AddEntry(header EntryHeader) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Record{Kind: kindOf(header), Header: header}
	if r.Kind != RecordEntry {
		return checkpoint.Newf(ErrNotSupported, "record of kind %v cannot be added as entry", r.Kind)
	}

	if d.lookup(r.Name()) >= 0 {
		return checkpoint.Wrap(fs.ErrExist, fmt.Errorf("entry %q", r.Name()))
	}

	i, err := d.allocSlot()
	if err != nil {
		return err
	}

	d.records[i] = r
	d.dirty = true
	d.logger.Debug("added entry", zap.String("name", r.Name()), zap.Int("slot", i))
	return nil
}

// RemoveEntry marks the entry as deleted. Its clusters are not freed.
func (d *Directory) RemoveEntry(name string) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.lookup(name)
	if i < 0 {
		return Record{}, checkpoint.Wrap(fs.ErrNotExist, fmt.Errorf("entry %q", name))
	}

	removed := d.records[i]
	d.records[i].Kind = RecordDeleted
	d.dirty = true
	return removed, nil
}

// RenameEntry changes the short name of an entry.
func (d *Directory) RenameEntry(oldName, newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.lookup(oldName)
	if i < 0 {
		return checkpoint.Wrap(fs.ErrNotExist, fmt.Errorf("entry %q", oldName))
	}

	shortName, err := ShortName(newName)
	if err != nil {
		return checkpoint.From(err)
	}

	if j := d.lookup(newName); j >= 0 && j != i {
		return checkpoint.Wrap(fs.ErrExist, fmt.Errorf("entry %q", newName))
	}

	d.records[i].Header.Name = shortName
	d.dirty = true
	return nil
}

// UpdateEntry replaces the header of an existing entry, e.g. after the size of a file changed.
// The name of the header is used to find the entry.
func (d *Directory) UpdateEntry(header EntryHeader) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Record{Kind: kindOf(header), Header: header}
	i := d.lookup(r.Name())
	if r.Kind != RecordEntry || i < 0 {
		return checkpoint.Wrap(fs.ErrNotExist, fmt.Errorf("entry %q", r.Name()))
	}

	d.records[i] = r
	d.dirty = true
	return nil
}

// Label returns the volume label of the directory if it has one.
func (d *Directory) Label() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.labelSlot < 0 {
		return "", false
	}
	return d.records[d.labelSlot].Name(), true
}

// SetLabel changes the volume label which is only possible for the root directory.
// An empty label removes the label record with the next Flush.
//
// The label is not validated besides its length, see Fs.SetLabel for that.
func (d *Directory) SetLabel(label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.root {
		return checkpoint.Newf(ErrNotSupported, "volume label change on non-root directory")
	}

	if label == "" {
		if d.labelSlot >= 0 {
			d.records[d.labelSlot].Kind = RecordDeleted
			d.labelSlot = -1
			d.dirty = true
		}
		return nil
	}

	name, err := labelName(label)
	if err != nil {
		return err
	}

	if d.labelSlot < 0 {
		for i, r := range d.records {
			if r.Kind == RecordLabel && !r.isProtectedLabel() {
				d.labelSlot = i
				break
			}
		}
	}

	if d.labelSlot < 0 {
		i, err := d.allocSlot()
		if err != nil {
			return err
		}

		now := time.Now()
		d.records[i] = Record{
			Kind: RecordLabel,
			Header: EntryHeader{
				Attribute: AttrVolumeID,
				WriteTime: EncodeTime(now),
				WriteDate: EncodeDate(now),
			},
		}
		d.labelSlot = i
	}

	d.records[d.labelSlot].Header.Name = name
	d.dirty = true
	d.logger.Debug("set label record", zap.String("label", label), zap.Int("slot", d.labelSlot))
	return nil
}

// Flush writes all records to the backing storage.
// A chain is resized to the size of the records first. The new clusters are filled with free records.
func (d *Directory) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.chain == nil {
		data, err := encodeRecords(d.records)
		if err != nil {
			return err
		}

		if err := writeFull(d.dev, d.offset, data); err != nil {
			return err
		}

		d.dirty = false
		d.logger.Debug("flushed root directory", zap.Int("records", len(d.records)))
		return nil
	}

	if d.CanChangeSize() {
		size, err := d.chain.SetSize(int64(len(d.records)) * RecordSize)
		if err != nil {
			return err
		}

		// Clusters may contain old data, so all slots up to the new capacity are written.
		for int64(len(d.records))*RecordSize < size {
			d.records = append(d.records, Record{Kind: RecordFree})
		}
	}

	data, err := encodeRecords(d.records)
	if err != nil {
		return err
	}

	if err := d.chain.WriteData(0, data); err != nil {
		return err
	}

	d.dirty = false
	d.logger.Debug("flushed directory", zap.Uint32("cluster", d.chain.StartCluster()), zap.Int("records", len(d.records)))
	return nil
}
