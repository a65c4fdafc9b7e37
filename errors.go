package fatstore

import (
	"errors"
	"fmt"
)

// These errors may occur while working with cluster chains, directories and volumes.
// Device errors are never replaced by one of them, they stay reachable through errors.Is and errors.As.
var (
	ErrInvalidCluster    = errors.New("invalid cluster")
	ErrChainTooLarge     = errors.New("cluster chain too large")
	ErrOutOfRange        = errors.New("access beyond the end of the cluster chain")
	ErrNotSupported      = errors.New("operation not supported")
	ErrReadOnly          = errors.New("read only")
	ErrNoSpace           = errors.New("not enough free clusters")
	ErrInvalidLabel      = errors.New("invalid volume label")
	ErrInvalidBootSector = errors.New("invalid boot sector")
	ErrShortIO           = errors.New("short device read or write")

	// ErrDirectoryFull is returned when a fixed size root directory has no free slot left.
	// It also matches ErrNotSupported as such a directory can never be resized.
	ErrDirectoryFull = fmt.Errorf("%w: directory is full and cannot grow", ErrNotSupported)
)
