package fatstore

import (
	"io"
	"os"

	"github.com/aligator/fatstore/checkpoint"
	"github.com/spf13/afero"
)

// BlockDevice is the byte addressable storage a FAT volume lives on.
// Errors of the device are passed to the caller unchanged.
// Generated mock using mockgen:
//  mockgen -source=device.go -destination=device_mock.go -package fatstore
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
}

// readFull reads exactly len(p) bytes at the given device offset.
func readFull(dev BlockDevice, off int64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := dev.ReadAt(p, off)
	if n == len(p) {
		// ReadAt may report io.EOF if the read ends exactly at the end of the device.
		return nil
	}
	if err != nil {
		return checkpoint.From(err)
	}
	return checkpoint.Newf(ErrShortIO, "read %d of %d bytes at offset %d", n, len(p), off)
}

// writeFull writes all of p at the given device offset.
func writeFull(dev BlockDevice, off int64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := dev.WriteAt(p, off)
	if err != nil {
		return checkpoint.From(err)
	}
	if n != len(p) {
		return checkpoint.Newf(ErrShortIO, "wrote %d of %d bytes at offset %d", n, len(p), off)
	}
	return nil
}

// FileDevice is a BlockDevice backed by an afero.File, e.g. an image file
// on disk or an in-memory file.
type FileDevice struct {
	afero.File
	size int64
}

// NewFileDevice uses the given file as device. The device size is the size of the file when it is opened.
func NewFileDevice(f afero.File) (*FileDevice, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, checkpoint.From(err)
	}

	return &FileDevice{
		File: f,
		size: info.Size(),
	}, nil
}

// OpenFileDevice opens the image at the given path of fs.
func OpenFileDevice(fs afero.Fs, path string, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	dev, err := NewFileDevice(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return dev, nil
}

// CreateFileDevice creates (or truncates) the image at the given path of fs with the given size.
func CreateFileDevice(fs afero.Fs, path string, size int64) (*FileDevice, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, checkpoint.From(err)
	}

	return &FileDevice{
		File: f,
		size: size,
	}, nil
}

// NewMemDevice creates a zeroed device of the given size which only lives in memory.
// It is meant for tests and small volumes: every write to an afero in-memory file
// copies the file content behind the written range.
func NewMemDevice(size int64) (*FileDevice, error) {
	return CreateFileDevice(afero.NewMemMapFs(), "device.img", size)
}

// Size returns the size of the device in bytes.
func (d *FileDevice) Size() int64 {
	return d.size
}
