package fatstore

import (
	"math"

	"github.com/aligator/fatstore/checkpoint"
)

// ChainContext holds everything of a volume a ClusterChain needs.
// The volume owns the table, chains only get a handle to it.
type ChainContext struct {
	Table  AllocationTable
	Device BlockDevice
	// ClusterSize in bytes.
	ClusterSize int64
	// DataOffset is the device offset of cluster 2.
	DataOffset int64
}

// ClusterChain is a view on the clusters of one file or directory.
// It translates offsets in the chain to device offsets and resizes the chain through the allocation table.
//
// A ClusterChain is not safe for concurrent use.
type ClusterChain struct {
	ctx      ChainContext
	start    uint32
	readOnly bool
}

// NewClusterChain creates a chain beginning at start. Start 0 creates an empty chain.
// Any other start cluster has to be allocated already, otherwise ErrInvalidCluster is returned.
func NewClusterChain(ctx ChainContext, start uint32, readOnly bool) (*ClusterChain, error) {
	if start != 0 {
		if err := ctx.Table.TestCluster(start); err != nil {
			return nil, checkpoint.Wrap(err, ErrInvalidCluster)
		}
	}

	return &ClusterChain{
		ctx:      ctx,
		start:    start,
		readOnly: readOnly,
	}, nil
}

// StartCluster returns the first cluster of the chain or 0 if it is empty.
func (c *ClusterChain) StartCluster() uint32 {
	return c.start
}

func (c *ClusterChain) ClusterSize() int64 {
	return c.ctx.ClusterSize
}

func (c *ClusterChain) ReadOnly() bool {
	return c.readOnly
}

func (c *ClusterChain) deviceOffset(cluster uint32, clusterOffset int64) int64 {
	return c.ctx.DataOffset + clusterOffset + int64(cluster-firstCluster)*c.ctx.ClusterSize
}

func (c *ClusterChain) clusters() ([]uint32, error) {
	if c.start == 0 {
		return nil, nil
	}

	chain, err := c.ctx.Table.Chain(c.start)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	return chain, nil
}

// ChainLength returns the number of clusters. It walks the whole chain.
func (c *ClusterChain) ChainLength() (int, error) {
	chain, err := c.clusters()
	return len(chain), err
}

// LengthOnDisk returns the size of all clusters of the chain in bytes. It walks the whole chain.
func (c *ClusterChain) LengthOnDisk() (int64, error) {
	n, err := c.ChainLength()
	if err != nil {
		return 0, err
	}
	return int64(n) * c.ctx.ClusterSize, nil
}

// SetSize resizes the chain to the number of clusters needed for size bytes.
// It returns the new size which is always a multiple of the cluster size.
func (c *ClusterChain) SetSize(size int64) (int64, error) {
	if size < 0 {
		return 0, checkpoint.Newf(ErrChainTooLarge, "negative size %d", size)
	}

	cs := c.ctx.ClusterSize
	n := size / cs
	if size%cs != 0 {
		n++
	}

	if n > math.MaxInt32 {
		return 0, checkpoint.Newf(ErrChainTooLarge, "%d clusters needed for %d bytes", n, size)
	}

	if err := c.SetChainLength(int(n)); err != nil {
		return 0, err
	}
	return n * cs, nil
}

// SetChainLength grows or shrinks the chain to n clusters.
// Growing allocates new clusters, shrinking returns the clusters behind n to the free pool.
// Shrinking to 0 frees every cluster and the chain becomes empty.
//
// The change is not atomic. If the table fails in between, the chain stays in the state reached so far.
func (c *ClusterChain) SetChainLength(n int) error {
	if c.readOnly {
		return checkpoint.Newf(ErrReadOnly, "cannot resize read only chain starting at %d", c.start)
	}
	if n < 0 {
		return checkpoint.Newf(ErrChainTooLarge, "negative cluster count %d", n)
	}

	if c.start == 0 {
		if n == 0 {
			return nil
		}

		chain, err := c.ctx.Table.AllocNew(n)
		if err != nil {
			return checkpoint.From(err)
		}
		c.start = chain[0]
		return nil
	}

	chain, err := c.clusters()
	if err != nil {
		return err
	}

	switch {
	case n > len(chain):
		for i := len(chain); i < n; i++ {
			if _, err := c.ctx.Table.AllocAppend(c.start); err != nil {
				return checkpoint.From(err)
			}
		}
	case n < len(chain):
		if n > 0 {
			if err := c.ctx.Table.SetEOF(chain[n-1]); err != nil {
				return checkpoint.From(err)
			}
		}
		for _, cluster := range chain[n:] {
			if err := c.ctx.Table.SetFree(cluster); err != nil {
				return checkpoint.From(err)
			}
		}
		if n == 0 {
			c.start = 0
		}
	}
	return nil
}

// ioRange is a single device access of ReadData or WriteData.
type ioRange struct {
	// deviceOffset to access.
	deviceOffset int64
	// from and to are the part of the callers buffer.
	from, to int
}

// plan splits an access of length bytes at offset into per cluster device ranges.
//
// If offset is not cluster aligned, the first range ends one byte before the end of its cluster
// and the next range continues at the start of the following cluster.
// That byte is never accessed. Aligned accesses are not affected.
func (c *ClusterChain) plan(offset int64, length int) ([]ioRange, error) {
	if length == 0 {
		return nil, nil
	}
	if offset < 0 {
		return nil, checkpoint.Newf(ErrOutOfRange, "negative offset %d", offset)
	}

	chain, err := c.clusters()
	if err != nil {
		return nil, err
	}

	cs := c.ctx.ClusterSize
	chainIdx := offset / cs
	remaining := length
	pos := 0
	var ranges []ioRange

	if clusterOffset := offset % cs; clusterOffset != 0 {
		if chainIdx >= int64(len(chain)) {
			return nil, checkpoint.Newf(ErrOutOfRange, "offset %d is behind the end of the chain of %d clusters", offset, len(chain))
		}

		size := int(cs - clusterOffset - 1)
		if remaining < size {
			size = remaining
		}

		ranges = append(ranges, ioRange{
			deviceOffset: c.deviceOffset(chain[chainIdx], clusterOffset),
			from:         pos,
			to:           pos + size,
		})
		pos += size
		remaining -= size
		chainIdx++
	}

	for remaining > 0 {
		if chainIdx >= int64(len(chain)) {
			return nil, checkpoint.Newf(ErrOutOfRange, "access of %d bytes at %d is behind the end of the chain of %d clusters", length, offset, len(chain))
		}

		size := int(cs)
		if remaining < size {
			size = remaining
		}

		ranges = append(ranges, ioRange{
			deviceOffset: c.deviceOffset(chain[chainIdx], 0),
			from:         pos,
			to:           pos + size,
		})
		pos += size
		remaining -= size
		chainIdx++
	}

	return ranges, nil
}

// ReadData fills dst with the data of the chain beginning at offset.
// It returns ErrOutOfRange if the chain is too short.
func (c *ClusterChain) ReadData(offset int64, dst []byte) error {
	ranges, err := c.plan(offset, len(dst))
	if err != nil {
		return err
	}

	for _, r := range ranges {
		if err := readFull(c.ctx.Device, r.deviceOffset, dst[r.from:r.to]); err != nil {
			return err
		}
	}
	return nil
}

// WriteData writes src into the chain beginning at offset.
// The chain is not grown, it has to be resized before.
func (c *ClusterChain) WriteData(offset int64, src []byte) error {
	if c.readOnly {
		return checkpoint.Newf(ErrReadOnly, "cannot write to read only chain starting at %d", c.start)
	}

	ranges, err := c.plan(offset, len(src))
	if err != nil {
		return err
	}

	for _, r := range ranges {
		if err := writeFull(c.ctx.Device, r.deviceOffset, src[r.from:r.to]); err != nil {
			return err
		}
	}
	return nil
}
