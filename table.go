package fatstore

import (
	"encoding/binary"
	"sync"

	"github.com/aligator/fatstore/checkpoint"
	"go.uber.org/zap"
)

// FATType is the width of the entries of the file allocation table.
type FATType int

// The supported FAT variants. The zero value means the type is not known yet.
const (
	FAT12 FATType = iota + 1
	FAT16
	FAT32
)

func (t FATType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// firstCluster is the number of the first cluster of the data region.
// Entry 0 and 1 of every table are reserved.
const firstCluster = 2

// AllocationTable maps cluster numbers to the next cluster of a chain and
// keeps track of free clusters.
// Implementations must serialize concurrent calls themselves as all chains of a volume share one table.
// Generated mock using mockgen:
//  mockgen -source=table.go -destination=table_mock.go -package fatstore
type AllocationTable interface {
	// TestCluster returns ErrInvalidCluster if the cluster is not an allocated data cluster.
	TestCluster(cluster uint32) error
	// Chain returns all clusters of the chain beginning at start in order.
	Chain(start uint32) ([]uint32, error)
	// AllocNew allocates a new chain of count clusters.
	AllocNew(count int) ([]uint32, error)
	// AllocAppend appends one new cluster to the chain beginning at start and returns it.
	AllocAppend(start uint32) (uint32, error)
	// SetEOF marks the cluster as the last one of its chain.
	SetEOF(cluster uint32) error
	// SetFree returns the cluster to the free pool.
	SetFree(cluster uint32) error
}

// fatEntry is a single table entry. Entries of all FAT variants are kept in the 28 bit FAT32 form.
type fatEntry uint32

const (
	entryFree fatEntry = 0
	entryBad  fatEntry = 0x0FFFFFF7
	entryEOF  fatEntry = 0x0FFFFFFF
)

// Value returns the 28 bit value of the entry.
func (e fatEntry) Value() uint32 {
	return uint32(e) & 0x0FFFFFFF
}

// IsFree reports whether the cluster is not in use.
func (e fatEntry) IsFree() bool {
	return e.Value() == 0
}

// IsReservedTemp reports the value 1 which must never be used for a data cluster.
func (e fatEntry) IsReservedTemp() bool {
	return e.Value() == 1
}

// IsNextCluster reports whether the entry points to the next cluster of a chain.
func (e fatEntry) IsNextCluster() bool {
	return e.Value() >= firstCluster && e.Value() <= 0x0FFFFFEF
}

// IsReserved reports the reserved range just below the bad cluster marker.
func (e fatEntry) IsReserved() bool {
	return e.Value() >= 0x0FFFFFF0 && e.Value() <= 0x0FFFFFF6
}

// IsBad reports a cluster marked as unusable.
func (e fatEntry) IsBad() bool {
	return e.Value() == uint32(entryBad)
}

// IsEOF reports the end of a chain.
func (e fatEntry) IsEOF() bool {
	return e.Value() >= 0x0FFFFFF8
}

// Fat is an in-memory file allocation table which implements AllocationTable.
type Fat struct {
	mu sync.Mutex

	fatType FATType
	entries []fatEntry
	// lastAlloc is the cluster allocated last. The search for free clusters starts behind it.
	lastAlloc uint32

	logger *zap.Logger
}

// NewFat creates an empty table for clusterCount data clusters.
func NewFat(fatType FATType, clusterCount uint32, media byte) *Fat {
	f := &Fat{
		fatType:   fatType,
		entries:   make([]fatEntry, clusterCount+firstCluster),
		lastAlloc: firstCluster - 1,
		logger:    zap.NewNop(),
	}
	f.entries[0] = fatEntry(0x0FFFFF00 | uint32(media))
	f.entries[1] = entryEOF
	return f
}

// LoadFat reads the first copy of the table described by bs from the device.
func LoadFat(dev BlockDevice, bs *BootSector) (*Fat, error) {
	data := make([]byte, bs.FatSize())
	if err := readFull(dev, bs.FatOffset(0), data); err != nil {
		return nil, err
	}

	count := bs.ClusterCount() + firstCluster
	if max := maxEntries(bs.Type(), len(data)); count > max {
		count = max
	}

	f := &Fat{
		fatType:   bs.Type(),
		entries:   make([]fatEntry, count),
		lastAlloc: firstCluster - 1,
		logger:    zap.NewNop(),
	}
	for i := range f.entries {
		f.entries[i] = decodeEntry(bs.Type(), data, uint32(i))
	}
	return f, nil
}

func maxEntries(fatType FATType, size int) uint32 {
	switch fatType {
	case FAT12:
		return uint32(size * 2 / 3)
	case FAT16:
		return uint32(size / 2)
	default:
		return uint32(size / 4)
	}
}

func decodeEntry(fatType FATType, data []byte, n uint32) fatEntry {
	switch fatType {
	case FAT12:
		off := n + n/2
		v := uint32(binary.LittleEndian.Uint16(data[off:]))
		if n&1 == 1 {
			v >>= 4
		}
		v &= 0xFFF
		if v >= 0xFF0 {
			v |= 0x0FFFF000
		}
		return fatEntry(v)
	case FAT16:
		v := uint32(binary.LittleEndian.Uint16(data[n*2:]))
		if v >= 0xFFF0 {
			v |= 0x0FFF0000
		}
		return fatEntry(v)
	default:
		return fatEntry(binary.LittleEndian.Uint32(data[n*4:]) & 0x0FFFFFFF)
	}
}

func encodeEntry(fatType FATType, data []byte, n uint32, e fatEntry) {
	switch fatType {
	case FAT12:
		off := n + n/2
		v := uint16(e.Value() & 0xFFF)
		if n&1 == 0 {
			data[off] = byte(v)
			data[off+1] = data[off+1]&0xF0 | byte(v>>8)
		} else {
			data[off] = data[off]&0x0F | byte(v<<4)
			data[off+1] = byte(v >> 4)
		}
	case FAT16:
		binary.LittleEndian.PutUint16(data[n*2:], uint16(e.Value()))
	default:
		binary.LittleEndian.PutUint32(data[n*4:], e.Value())
	}
}

// Type returns the FAT variant of the table.
func (f *Fat) Type() FATType {
	return f.fatType
}

// Bytes encodes the table into size bytes, the size of one FAT copy on the device.
func (f *Fat) Bytes(size int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := make([]byte, size)
	count := uint32(len(f.entries))
	if max := maxEntries(f.fatType, size); count > max {
		count = max
	}
	for i := uint32(0); i < count; i++ {
		encodeEntry(f.fatType, data, i, f.entries[i])
	}
	return data
}

// Store writes every copy of the table described by bs to the device.
func (f *Fat) Store(dev BlockDevice, bs *BootSector) error {
	data := f.Bytes(int(bs.FatSize()))
	for i := 0; i < int(bs.NumFATs); i++ {
		if err := writeFull(dev, bs.FatOffset(i), data); err != nil {
			return err
		}
	}
	return nil
}

// FreeClusters counts the clusters which are not in use.
func (f *Fat) FreeClusters() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	free := 0
	for _, e := range f.entries[firstCluster:] {
		if e.IsFree() {
			free++
		}
	}
	return free
}

// LastAllocated returns the cluster allocated most recently.
func (f *Fat) LastAllocated() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAlloc
}

func (f *Fat) testCluster(cluster uint32) error {
	if cluster < firstCluster || cluster >= uint32(len(f.entries)) {
		return checkpoint.Newf(ErrInvalidCluster, "cluster %d is not in the range [%d, %d)", cluster, firstCluster, len(f.entries))
	}
	return nil
}

// TestCluster implements AllocationTable.
func (f *Fat) TestCluster(cluster uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.testCluster(cluster); err != nil {
		return err
	}
	if f.entries[cluster].IsFree() {
		return checkpoint.Newf(ErrInvalidCluster, "cluster %d is free", cluster)
	}
	return nil
}

func (f *Fat) chain(start uint32) ([]uint32, error) {
	if err := f.testCluster(start); err != nil {
		return nil, err
	}

	result := []uint32{start}
	current := start
	for {
		e := f.entries[current]
		if e.IsEOF() {
			return result, nil
		}
		if !e.IsNextCluster() || e.Value() >= uint32(len(f.entries)) {
			return nil, checkpoint.Newf(ErrInvalidCluster, "chain starting at %d is broken at cluster %d (entry %#x)", start, current, e.Value())
		}
		if len(result) >= len(f.entries) {
			return nil, checkpoint.Newf(ErrInvalidCluster, "chain starting at %d contains a loop", start)
		}
		current = e.Value()
		result = append(result, current)
	}
}

// Chain implements AllocationTable.
func (f *Fat) Chain(start uint32) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chain(start)
}

// nextFree searches the next free cluster behind the last allocated one and wraps around once.
func (f *Fat) nextFree() (uint32, bool) {
	count := uint32(len(f.entries))
	if count <= firstCluster {
		return 0, false
	}

	start := f.lastAlloc + 1
	if start < firstCluster || start >= count {
		start = firstCluster
	}

	for i := uint32(0); i < count-firstCluster; i++ {
		c := start + i
		if c >= count {
			c = c - count + firstCluster
		}
		if f.entries[c].IsFree() {
			return c, true
		}
	}
	return 0, false
}

// AllocNew implements AllocationTable.
// Either all clusters get allocated or none.
func (f *Fat) AllocNew(count int) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if count <= 0 {
		return nil, checkpoint.Newf(ErrInvalidCluster, "cannot allocate %d clusters", count)
	}

	free := 0
	for _, e := range f.entries[firstCluster:] {
		if e.IsFree() {
			free++
		}
	}
	if free < count {
		return nil, checkpoint.Newf(ErrNoSpace, "%d clusters requested, %d free", count, free)
	}

	result := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		c, _ := f.nextFree()
		f.entries[c] = entryEOF
		if i > 0 {
			f.entries[result[i-1]] = fatEntry(c)
		}
		f.lastAlloc = c
		result = append(result, c)
	}

	f.logger.Debug("allocated new chain", zap.Int("clusters", count), zap.Uint32("start", result[0]))
	return result, nil
}

// AllocAppend implements AllocationTable.
func (f *Fat) AllocAppend(start uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	chain, err := f.chain(start)
	if err != nil {
		return 0, err
	}

	c, ok := f.nextFree()
	if !ok {
		return 0, checkpoint.Newf(ErrNoSpace, "cannot append to chain starting at %d", start)
	}

	f.entries[c] = entryEOF
	f.entries[chain[len(chain)-1]] = fatEntry(c)
	f.lastAlloc = c
	return c, nil
}

// SetEOF implements AllocationTable.
func (f *Fat) SetEOF(cluster uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.testCluster(cluster); err != nil {
		return err
	}
	f.entries[cluster] = entryEOF
	return nil
}

// SetFree implements AllocationTable.
func (f *Fat) SetFree(cluster uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.testCluster(cluster); err != nil {
		return err
	}
	f.entries[cluster] = entryFree
	return nil
}
