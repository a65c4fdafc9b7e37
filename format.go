package fatstore

import (
	"fmt"

	"github.com/aligator/fatstore/checkpoint"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	formatSectorSize = 512
	formatMedia      = 0xF8
	formatFATs       = 2

	fat32ReservedSectors  = 32
	fat32FSInfoSector     = 1
	fat32BackupBootSector = 6
	fat32RootCluster      = 2

	// maxSectorsPerCluster keeps clusters at 32K.
	maxSectorsPerCluster = 64
)

// FormatConfig contains the settings for Format.
// The zero value formats a volume without label with the type chosen by the size of the volume.
type FormatConfig struct {
	// Type of the new volume. If it is not set it is chosen by the volume size:
	// FAT12 below 4 MiB, FAT16 below 512 MiB and FAT32 for anything bigger.
	Type FATType
	// SectorsPerCluster has to be a power of two. If it is 0 the smallest
	// value resulting in a valid cluster count for the type is used.
	SectorsPerCluster uint8
	// Label of the volume. It is validated like Fs.SetLabel does.
	Label string
	// OEMName is stored in the boot sector. "fatstore" if empty.
	OEMName string

	Logger *zap.Logger
}

// DefaultFATType returns the type Format uses for a volume of size bytes.
func DefaultFATType(size int64) FATType {
	switch {
	case size < 4*1024*1024:
		return FAT12
	case size < 512*1024*1024:
		return FAT16
	default:
		return FAT32
	}
}

type formatGeometry struct {
	sectorsPerCluster uint8
	reservedSectors   uint16
	rootEntries       uint16
	fatSectors        uint32
	clusters          uint32
}

func fatBytes(fatType FATType, entries uint32) uint32 {
	switch fatType {
	case FAT12:
		return (entries*3 + 1) / 2
	case FAT16:
		return entries * 2
	default:
		return entries * 4
	}
}

// computeFormatGeometry finds the FAT size by iteration as the FAT size depends on the
// cluster count which in turn depends on the FAT size.
func computeFormatGeometry(fatType FATType, totalSectors uint32, spc uint8) (formatGeometry, error) {
	g := formatGeometry{
		sectorsPerCluster: spc,
		reservedSectors:   1,
		fatSectors:        1,
	}
	switch fatType {
	case FAT12:
		g.rootEntries = 224
	case FAT16:
		g.rootEntries = 512
	default:
		g.reservedSectors = fat32ReservedSectors
	}

	rootDirSectors := (uint32(g.rootEntries)*RecordSize + formatSectorSize - 1) / formatSectorSize
	for {
		meta := uint32(g.reservedSectors) + formatFATs*g.fatSectors + rootDirSectors
		if meta >= totalSectors {
			return g, checkpoint.Newf(ErrNoSpace, "%d sectors are too small for a %v volume", totalSectors, fatType)
		}

		g.clusters = (totalSectors - meta) / uint32(spc)
		needed := (fatBytes(fatType, g.clusters+firstCluster) + formatSectorSize - 1) / formatSectorSize
		if needed <= g.fatSectors {
			return g, nil
		}
		g.fatSectors = needed
	}
}

func chooseFormatGeometry(fatType FATType, totalSectors uint32, spc uint8) (formatGeometry, error) {
	if spc != 0 {
		if spc&(spc-1) != 0 || spc > maxSectorsPerCluster {
			return formatGeometry{}, checkpoint.Newf(ErrNotSupported, "invalid sectors per cluster %d", spc)
		}

		g, err := computeFormatGeometry(fatType, totalSectors, spc)
		if err != nil {
			return g, err
		}
		if typeOfClusterCount(g.clusters) != fatType {
			return g, checkpoint.Newf(ErrNotSupported, "%d clusters of %d sectors result in %v instead of %v", g.clusters, spc, typeOfClusterCount(g.clusters), fatType)
		}
		return g, nil
	}

	for spc = 1; spc <= maxSectorsPerCluster; spc *= 2 {
		g, err := computeFormatGeometry(fatType, totalSectors, spc)
		if err != nil {
			return g, err
		}

		actual := typeOfClusterCount(g.clusters)
		if actual == fatType {
			return g, nil
		}
		if actual < fatType {
			return g, checkpoint.Newf(ErrNotSupported, "volume of %d sectors is too small for %v", totalSectors, fatType)
		}
	}
	return formatGeometry{}, checkpoint.Newf(ErrNotSupported, "volume of %d sectors is too big for %v", totalSectors, fatType)
}

func paddedName(s string, n int) []byte {
	result := make([]byte, n)
	for i := range result {
		result[i] = ' '
	}
	copy(result, s)
	return result
}

// Format writes an empty FAT volume of size bytes to the device, without partition table.
// Any data in the metadata region of the device is overwritten.
func Format(dev BlockDevice, size int64, config FormatConfig) error {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.Label != "" {
		if err := validateLabel(config.Label); err != nil {
			return err
		}
	}

	fatType := config.Type
	if fatType == 0 {
		fatType = DefaultFATType(size)
	}

	if size/formatSectorSize > int64(^uint32(0)) {
		return checkpoint.Newf(ErrNotSupported, "volume of %d bytes is too big", size)
	}
	totalSectors := uint32(size / formatSectorSize)

	g, err := chooseFormatGeometry(fatType, totalSectors, config.SectorsPerCluster)
	if err != nil {
		return err
	}

	oemName := config.OEMName
	if oemName == "" {
		oemName = "fatstore"
	}

	bs := &BootSector{
		BPB: BPB{
			BSJumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
			BytesPerSector:      formatSectorSize,
			SectorsPerCluster:   g.sectorsPerCluster,
			ReservedSectorCount: g.reservedSectors,
			NumFATs:             formatFATs,
			RootEntryCount:      g.rootEntries,
			Media:               formatMedia,
			SectorsPerTrack:     32,
			NumberOfHeads:       64,
		},
		fatType:      fatType,
		clusterCount: g.clusters,
	}
	copy(bs.BSOEMName[:], paddedName(oemName, 8))

	var noName [11]byte
	copy(noName[:], paddedName(DefaultVolumeLabel, 11))
	volumeID := uuid.New().ID()

	if fatType == FAT32 {
		bs.BSJumpBoot[1] = 0x58
		bs.TotalSectors32 = totalSectors
		bs.FAT32 = FAT32SpecificData{
			FatSize:         g.fatSectors,
			RootCluster:     fat32RootCluster,
			FSInfo:          fat32FSInfoSector,
			BkBootSector:    fat32BackupBootSector,
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      volumeID,
			BSVolumeLabel:   noName,
		}
		copy(bs.FAT32.BSFileSystemType[:], paddedName("FAT32", 8))
	} else {
		if totalSectors < 0x10000 {
			bs.TotalSectors16 = uint16(totalSectors)
		} else {
			bs.TotalSectors32 = totalSectors
		}
		bs.FATSize16 = uint16(g.fatSectors)
		bs.FAT16 = FAT16SpecificData{
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      volumeID,
			BSVolumeLabel:   noName,
		}
		copy(bs.FAT16.BSFileSystemType[:], paddedName(fatType.String(), 8))
	}

	// Clear everything up to the first data cluster, for FAT32 including the root cluster.
	end := bs.DataOffset()
	if fatType == FAT32 {
		end += bs.ClusterSize()
	}
	if err := zeroRegion(dev, 0, end); err != nil {
		return err
	}

	if err := bs.Write(dev); err != nil {
		return err
	}

	fat := NewFat(fatType, g.clusters, formatMedia)
	fat.logger = logger
	if fatType == FAT32 {
		if err := fat.SetEOF(fat32RootCluster); err != nil {
			return err
		}
	}
	if err := fat.Store(dev, bs); err != nil {
		return err
	}

	if fatType == FAT32 {
		info := newFSInfo(uint32(fat.FreeClusters()), fat32RootCluster+1)
		if err := bs.WriteFSInfo(dev, info); err != nil {
			return err
		}
	}

	logger.Debug("formatted volume",
		zap.Stringer("type", fatType),
		zap.Uint8("sectorsPerCluster", g.sectorsPerCluster),
		zap.Uint32("clusters", g.clusters),
		zap.Uint32("fatSectors", g.fatSectors),
		zap.String("volumeID", fmt.Sprintf("%08X", volumeID)),
	)

	if config.Label == "" {
		return nil
	}

	fs, err := New(dev, WithLogger(logger))
	if err != nil {
		return err
	}
	if err := fs.SetLabel(config.Label); err != nil {
		return err
	}
	return fs.Close()
}

// zeroChunkSize keeps the number of writes low, in-memory files copy their tail on every write.
const zeroChunkSize = 4 * 1024 * 1024

func zeroRegion(dev BlockDevice, off, end int64) error {
	n := end - off
	if n > zeroChunkSize {
		n = zeroChunkSize
	}
	if n <= 0 {
		return nil
	}

	zeros := make([]byte, n)
	for off < end {
		n := int64(len(zeros))
		if end-off < n {
			n = end - off
		}
		if err := writeFull(dev, off, zeros[:n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}
