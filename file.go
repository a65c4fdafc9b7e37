package fatstore

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/aligator/fatstore/checkpoint"
)

// These errors may occur while processing a file.
var (
	ErrReadFile  = errors.New("could not read file completely")
	ErrWriteFile = errors.New("could not write file completely")
	ErrSeekFile  = errors.New("could not seek inside of the file")
)

// File is the content of a file stored in a ClusterChain.
// The size is not stored anywhere by File, update the directory entry with Size after writing.
//
// All accesses to the chain are cluster aligned.
type File struct {
	chain  *ClusterChain
	size   int64
	offset int64
}

// NewFile uses the first size bytes of chain as file content.
func NewFile(chain *ClusterChain, size int64) *File {
	return &File{
		chain: chain,
		size:  size,
	}
}

// StartCluster returns the first cluster of the file, 0 if nothing was written yet.
func (f *File) StartCluster() uint32 {
	return f.chain.StartCluster()
}

// Size returns the current size of the file.
func (f *File) Size() int64 {
	return f.size
}

// alignedRange returns the cluster aligned range containing [off, off+n).
func (f *File) alignedRange(off, n int64) (int64, int64) {
	cs := f.chain.ClusterSize()
	start := off / cs * cs
	end := (off + n + cs - 1) / cs * cs
	return start, end
}

func (f *File) Read(p []byte) (n int, err error) {
	n, err = f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, checkpoint.Wrap(syscall.EINVAL, ErrReadFile)
	}

	// Reading over the end makes no sense.
	if f.size <= off {
		return 0, io.EOF
	}

	n = len(p)
	if int64(n) > f.size-off {
		n = int(f.size - off)
	}

	start, end := f.alignedRange(off, int64(n))
	buf := make([]byte, end-start)
	if err := f.chain.ReadData(start, buf); err != nil {
		return 0, checkpoint.Wrap(err, ErrReadFile)
	}
	copy(p, buf[off-start:])

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	n, err = f.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// WriteAt writes p at off and grows the file if needed.
// Writing behind the end fills the gap with zeros.
func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, checkpoint.Wrap(syscall.EINVAL, ErrWriteFile)
	}

	if off > f.size {
		if _, err := f.WriteAt(make([]byte, off-f.size), f.size); err != nil {
			return 0, err
		}
	}

	end := off + int64(len(p))
	length, err := f.chain.LengthOnDisk()
	if err != nil {
		return 0, checkpoint.Wrap(err, ErrWriteFile)
	}
	if end > length {
		if _, err := f.chain.SetSize(end); err != nil {
			return 0, checkpoint.Wrap(err, ErrWriteFile)
		}
	}

	start, alignedEnd := f.alignedRange(off, int64(len(p)))
	buf := make([]byte, alignedEnd-start)

	// Only the part which is already file content has to be read.
	if f.size > start {
		readEnd := alignedEnd
		if _, sizeEnd := f.alignedRange(f.size, 0); sizeEnd < readEnd {
			readEnd = sizeEnd
		}
		if err := f.chain.ReadData(start, buf[:readEnd-start]); err != nil {
			return 0, checkpoint.Wrap(err, ErrWriteFile)
		}
		// Clusters may contain old data behind the end of the file.
		for i := f.size - start; i < readEnd-start; i++ {
			buf[i] = 0
		}
	}

	copy(buf[off-start:], p)
	if err := f.chain.WriteData(start, buf); err != nil {
		return 0, checkpoint.Wrap(err, ErrWriteFile)
	}

	if end > f.size {
		f.size = end
	}
	return len(p), nil
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}

// Seek jumps to a specific offset in the file. This affects all Read and Write operations except ReadAt and WriteAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// Seeking behind the end is allowed, the next Write fills the gap with zeros.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.size + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 {
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

// Truncate changes the size of the file and of its chain.
func (f *File) Truncate(size int64) error {
	if size < 0 {
		return checkpoint.Wrap(syscall.EINVAL, ErrWriteFile)
	}

	if size > f.size {
		// Growing writes zeros so no old cluster content becomes visible.
		_, err := f.WriteAt(make([]byte, size-f.size), f.size)
		return err
	}

	if _, err := f.chain.SetSize(size); err != nil {
		return checkpoint.Wrap(err, ErrWriteFile)
	}
	f.size = size
	return nil
}

func (f *File) Close() error {
	f.chain = nil
	f.size = 0
	f.offset = 0
	return nil
}
