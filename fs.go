package fatstore

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/aligator/fatstore/checkpoint"
	"go.uber.org/zap"
)

// Fs is a mounted FAT volume. It owns the allocation table and the root directory
// and hands out chains, directories and files which share them.
type Fs struct {
	mu sync.Mutex

	dev    BlockDevice
	bs     *BootSector
	fat    *Fat
	root   *Directory
	logger *zap.Logger

	readOnly   bool
	skipChecks bool
	closed     bool
	bsDirty    bool

	// dirs are all directories opened through the Fs. They are flushed together with the volume.
	dirs []*Directory
}

// Option configures New.
type Option func(*Fs)

// ReadOnly mounts the volume read only. Every change fails with ErrReadOnly.
func ReadOnly() Option {
	return func(f *Fs) {
		f.readOnly = true
	}
}

// SkipChecks skips the validation of the boot sector.
// This may allow you to open not perfectly standard FAT filesystems.
// Use with caution!
func SkipChecks() Option {
	return func(f *Fs) {
		f.skipChecks = true
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fs) {
		f.logger = logger
	}
}

// New mounts the FAT volume of the device.
func New(dev BlockDevice, opts ...Option) (*Fs, error) {
	f := &Fs{
		dev:    dev,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	bs, err := ReadBootSector(dev, f.skipChecks)
	if err != nil {
		return nil, err
	}
	f.bs = bs

	f.fat, err = LoadFat(dev, bs)
	if err != nil {
		return nil, err
	}
	f.fat.logger = f.logger

	if bs.Type() == FAT32 {
		chain, err := f.OpenChain(bs.RootCluster())
		if err != nil {
			return nil, checkpoint.Wrap(err, fmt.Errorf("open root directory chain at %d", bs.RootCluster()))
		}
		f.root, err = OpenDirectory(chain, bs.RootCluster(), f.logger)
		if err != nil {
			return nil, err
		}
	} else {
		f.root, err = OpenRootDirectory(dev, bs.RootDirOffset(), bs.RootDirEntries(), f.logger)
		if err != nil {
			return nil, err
		}
	}
	f.dirs = append(f.dirs, f.root)

	f.logger.Debug("mounted volume",
		zap.Stringer("type", bs.Type()),
		zap.Int64("clusterSize", bs.ClusterSize()),
		zap.Uint32("clusters", bs.ClusterCount()),
		zap.Bool("readOnly", f.readOnly),
	)
	return f, nil
}

func (f *Fs) checkOpen() error {
	if f.closed {
		return checkpoint.From(fs.ErrClosed)
	}
	return nil
}

// ChainContext returns the context all chains of the volume are created with.
func (f *Fs) ChainContext() ChainContext {
	return ChainContext{
		Table:       f.fat,
		Device:      f.dev,
		ClusterSize: f.bs.ClusterSize(),
		DataOffset:  f.bs.DataOffset(),
	}
}

// FSType returns the FAT type of the volume.
func (f *Fs) FSType() FATType {
	return f.bs.Type()
}

// BootSector returns the parsed boot sector.
func (f *Fs) BootSector() *BootSector {
	return f.bs
}

// IsReadOnly reports whether the volume was mounted read only.
func (f *Fs) IsReadOnly() bool {
	return f.readOnly
}

// Root returns the root directory.
func (f *Fs) Root() *Directory {
	return f.root
}

// Label returns the label of the root directory and falls back to the label of the boot sector.
func (f *Fs) Label() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if label, ok := f.root.Label(); ok {
		return label
	}
	return f.bs.VolumeLabel()
}

// invalidLabelChars may not be part of a volume label.
const invalidLabelChars = "\"*+,./:;<=>?[\\]|"

// validateLabel checks the label in the way most systems do.
// Lower case letters are kept as they are.
func validateLabel(label string) error {
	if len(label) > 0 && label[0] == ' ' {
		return checkpoint.Newf(ErrInvalidLabel, "%q starts with a space", label)
	}

	for _, r := range label {
		if r < 0x20 || r == 0x7F {
			return checkpoint.Newf(ErrInvalidLabel, "%q contains control characters", label)
		}
		if strings.ContainsRune(invalidLabelChars, r) {
			return checkpoint.Newf(ErrInvalidLabel, "%q contains %q", label, r)
		}
	}

	// labelName checks the length and the code page.
	_, err := labelName(label)
	return err
}

// SetLabel changes the volume label in the root directory and in the boot sector.
// An empty label removes the label. The change is written by Flush or Close.
func (f *Fs) SetLabel(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return checkpoint.Newf(ErrReadOnly, "cannot set the label of a read only volume")
	}
	if err := validateLabel(label); err != nil {
		return err
	}

	if err := f.root.SetLabel(label); err != nil {
		return err
	}

	bsLabel := label
	if bsLabel == "" {
		bsLabel = DefaultVolumeLabel
	}
	name, err := labelName(bsLabel)
	if err != nil {
		return err
	}
	f.bs.SetVolumeLabel(name)
	f.bsDirty = true

	f.logger.Info("changed volume label", zap.String("label", label))
	return nil
}

// OpenChain creates a chain of the volume beginning at cluster, 0 for a new empty chain.
func (f *Fs) OpenChain(cluster uint32) (*ClusterChain, error) {
	return NewClusterChain(f.ChainContext(), cluster, f.readOnly)
}

// OpenDirectory reads the directory beginning at cluster. It is flushed together with the volume.
func (f *Fs) OpenDirectory(cluster uint32) (*Directory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	if cluster == f.bs.RootCluster() && f.bs.Type() == FAT32 {
		return f.root, nil
	}

	// A second instance of the same directory would overwrite the changes of the first one on flush.
	if cluster != 0 {
		for _, dir := range f.dirs {
			if chain := dir.Chain(); chain != nil && chain.StartCluster() == cluster {
				return dir, nil
			}
		}
	}

	chain, err := f.OpenChain(cluster)
	if err != nil {
		return nil, err
	}

	dir, err := OpenDirectory(chain, f.bs.RootCluster(), f.logger)
	if err != nil {
		return nil, err
	}
	f.dirs = append(f.dirs, dir)
	return dir, nil
}

// OpenFile opens the content of a file with the given size beginning at cluster.
func (f *Fs) OpenFile(cluster uint32, size int64) (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	chain, err := f.OpenChain(cluster)
	if err != nil {
		return nil, err
	}

	length, err := chain.LengthOnDisk()
	if err != nil {
		return nil, err
	}
	if size < 0 || size > length {
		return nil, checkpoint.Newf(ErrOutOfRange, "file size %d does not fit into the chain of %d bytes", size, length)
	}

	return NewFile(chain, size), nil
}

// CreateFile creates an empty file. It gets its first cluster with the first write.
func (f *Fs) CreateFile() (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if f.readOnly {
		return nil, checkpoint.Newf(ErrReadOnly, "cannot create a file on a read only volume")
	}

	chain, err := f.OpenChain(0)
	if err != nil {
		return nil, err
	}
	return NewFile(chain, 0), nil
}

// FreeClusters returns the number of unused clusters.
func (f *Fs) FreeClusters() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	return f.fat.FreeClusters(), nil
}

// Flush writes all changes of the directories, the allocation table and the boot sector.
// It does nothing for read only volumes.
func (f *Fs) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return err
	}
	return f.flush()
}

func (f *Fs) flush() error {
	if f.readOnly {
		return nil
	}

	for _, dir := range f.dirs {
		if !dir.IsDirty() {
			continue
		}
		if err := dir.Flush(); err != nil {
			return err
		}
	}

	if err := f.fat.Store(f.dev, f.bs); err != nil {
		return err
	}

	if f.bsDirty {
		if err := f.bs.Write(f.dev); err != nil {
			return err
		}
		f.bsDirty = false
	}

	if f.bs.Type() == FAT32 {
		if err := f.updateFSInfo(); err != nil {
			return err
		}
	}

	f.logger.Debug("flushed volume", zap.Int("directories", len(f.dirs)), zap.Int("freeClusters", f.fat.FreeClusters()))
	return nil
}

func (f *Fs) updateFSInfo() error {
	info, err := f.bs.ReadFSInfo(f.dev)
	if err != nil {
		// A broken FSInfo sector is replaced as its values are only hints.
		f.logger.Warn("replacing invalid FSInfo sector", zap.Error(err))
		info = newFSInfo(fsInfoUnknown, fsInfoUnknown)
	}

	info.FreeCount = uint32(f.fat.FreeClusters())
	info.NextFree = f.fat.LastAllocated() + 1
	return f.bs.WriteFSInfo(f.dev, info)
}

// Close flushes the volume. The device is not closed as it is owned by the caller.
func (f *Fs) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkOpen(); err != nil {
		return err
	}

	err := f.flush()
	f.closed = true
	return err
}
