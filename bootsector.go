package fatstore

import (
	"bytes"
	"encoding/binary"

	"github.com/aligator/fatstore/checkpoint"
)

const (
	bootSectorSize = 512

	fsInfoLeadSignature   = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
	// fsInfoUnknown is used for FreeCount and NextFree if the value is not known.
	fsInfoUnknown = 0xFFFFFFFF

	// DefaultVolumeLabel is the label stored in the boot sector of a volume without label.
	DefaultVolumeLabel = "NO NAME"
)

// BootSector is the parsed first sector of a volume with all values derived from it.
type BootSector struct {
	BPB
	FAT16 FAT16SpecificData
	FAT32 FAT32SpecificData

	fatType      FATType
	clusterCount uint32

	// raw is the complete sector. Writing only replaces the BPB so the boot code is kept.
	raw []byte
}

// ReadBootSector reads and validates the boot sector of the device.
// If skipChecks is set, only the checks needed to compute the geometry are done.
// This may allow opening not perfectly standard volumes. Use with caution!
func ReadBootSector(dev BlockDevice, skipChecks bool) (*BootSector, error) {
	raw := make([]byte, bootSectorSize)
	if err := readFull(dev, 0, raw); err != nil {
		return nil, err
	}

	bs := &BootSector{raw: raw}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &bs.BPB); err != nil {
		return nil, checkpoint.From(err)
	}
	if err := binary.Read(bytes.NewReader(bs.FATSpecificData[:]), binary.LittleEndian, &bs.FAT16); err != nil {
		return nil, checkpoint.From(err)
	}
	if err := binary.Read(bytes.NewReader(bs.FATSpecificData[:]), binary.LittleEndian, &bs.FAT32); err != nil {
		return nil, checkpoint.From(err)
	}

	if !skipChecks {
		if err := bs.validate(); err != nil {
			return nil, err
		}
	}

	// These are needed in any case as the geometry cannot be computed without them.
	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 {
		return nil, checkpoint.Newf(ErrInvalidBootSector, "sector size %d and sectors per cluster %d must not be 0", bs.BytesPerSector, bs.SectorsPerCluster)
	}

	if err := bs.computeGeometry(); err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *BootSector) validate() error {
	// Check if it is really a FAT filesystem.
	// Check for valid jump instructions
	if !(bs.BSJumpBoot[0] == 0xEB && bs.BSJumpBoot[2] == 0x90) && !(bs.BSJumpBoot[0] == 0xE9) {
		return checkpoint.Newf(ErrInvalidBootSector, "no valid jump instructions at the beginning")
	}

	if bs.raw[510] != 0x55 || bs.raw[511] != 0xAA {
		return checkpoint.Newf(ErrInvalidBootSector, "missing boot sector signature")
	}

	// FAT only supports 512, 1024, 2048 and 4096
	switch bs.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return checkpoint.Newf(ErrInvalidBootSector, "invalid sector size %d", bs.BytesPerSector)
	}

	// Sectors per cluster has to be a power of two and greater than 0.
	// Also the whole cluster size should not be more than 32K.
	spc := bs.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 || int(bs.BytesPerSector)*int(spc) > 32*1024 {
		return checkpoint.Newf(ErrInvalidBootSector, "invalid sectors per cluster %d", spc)
	}

	// Note: for FAT12 and FAT16 it is typically 1 for FAT32 it is typically 32.
	if bs.ReservedSectorCount == 0 {
		return checkpoint.Newf(ErrInvalidBootSector, "invalid reserved sector count")
	}

	if bs.NumFATs == 0 || bs.NumFATs > 2 {
		return checkpoint.Newf(ErrInvalidBootSector, "invalid number of FATs %d", bs.NumFATs)
	}

	if bs.Media != 0xF0 && bs.Media < 0xF8 {
		return checkpoint.Newf(ErrInvalidBootSector, "invalid media value %#x", bs.Media)
	}

	if bs.TotalSectors() == 0 {
		return checkpoint.Newf(ErrInvalidBootSector, "total sector count is 0")
	}

	return nil
}

func (bs *BootSector) computeGeometry() error {
	fatSectors := uint64(bs.fatSectors())
	metaSectors := uint64(bs.ReservedSectorCount) + uint64(bs.NumFATs)*fatSectors + uint64(bs.rootDirSectors())
	if fatSectors == 0 || metaSectors >= uint64(bs.TotalSectors()) {
		return checkpoint.Newf(ErrInvalidBootSector, "no data region: %d sectors for metadata, %d in total", metaSectors, bs.TotalSectors())
	}

	bs.clusterCount = uint32((uint64(bs.TotalSectors()) - metaSectors) / uint64(bs.SectorsPerCluster))
	bs.fatType = typeOfClusterCount(bs.clusterCount)
	return nil
}

// typeOfClusterCount determines the FAT type. The cluster count is the only thing deciding it.
func typeOfClusterCount(clusters uint32) FATType {
	if clusters < 4085 {
		return FAT12
	} else if clusters < 65525 {
		return FAT16
	}
	return FAT32
}

func (bs *BootSector) fatSectors() uint32 {
	if bs.FATSize16 != 0 {
		return uint32(bs.FATSize16)
	}
	return bs.FAT32.FatSize
}

func (bs *BootSector) rootDirSectors() uint32 {
	bps := uint32(bs.BytesPerSector)
	return (uint32(bs.RootEntryCount)*RecordSize + bps - 1) / bps
}

// Type returns the FAT type of the volume.
func (bs *BootSector) Type() FATType {
	return bs.fatType
}

// TotalSectors returns the sector count of the volume.
func (bs *BootSector) TotalSectors() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}
	return bs.TotalSectors32
}

// ClusterSize returns the size of a cluster in bytes.
func (bs *BootSector) ClusterSize() int64 {
	return int64(bs.BytesPerSector) * int64(bs.SectorsPerCluster)
}

// ClusterCount returns the number of data clusters.
func (bs *BootSector) ClusterCount() uint32 {
	return bs.clusterCount
}

// FatSize returns the size of one FAT copy in bytes.
func (bs *BootSector) FatSize() int64 {
	return int64(bs.fatSectors()) * int64(bs.BytesPerSector)
}

// FatOffset returns the device offset of the FAT copy i.
func (bs *BootSector) FatOffset(i int) int64 {
	return (int64(bs.ReservedSectorCount) + int64(i)*int64(bs.fatSectors())) * int64(bs.BytesPerSector)
}

// RootDirOffset returns the device offset of the fixed FAT12 / FAT16 root directory.
func (bs *BootSector) RootDirOffset() int64 {
	return bs.FatOffset(int(bs.NumFATs))
}

// RootDirEntries returns the record count of the fixed root directory. It is 0 for FAT32.
func (bs *BootSector) RootDirEntries() int {
	return int(bs.RootEntryCount)
}

// DataOffset returns the device offset of cluster 2.
func (bs *BootSector) DataOffset() int64 {
	return bs.RootDirOffset() + int64(bs.rootDirSectors())*int64(bs.BytesPerSector)
}

// RootCluster returns the first cluster of the root directory. It is 0 for FAT12 and FAT16.
func (bs *BootSector) RootCluster() uint32 {
	if bs.fatType != FAT32 {
		return 0
	}
	return bs.FAT32.RootCluster
}

// VolumeID returns the serial number of the volume.
func (bs *BootSector) VolumeID() uint32 {
	if bs.fatType == FAT32 {
		return bs.FAT32.BSVolumeID
	}
	return bs.FAT16.BSVolumeID
}

// VolumeLabel returns the label stored in the extended BPB.
// Note that the label in the root directory is the one most systems display.
func (bs *BootSector) VolumeLabel() string {
	if bs.fatType == FAT32 {
		return decodeName(bs.FAT32.BSVolumeLabel[:])
	}
	return decodeName(bs.FAT16.BSVolumeLabel[:])
}

// SetVolumeLabel sets the label of the extended BPB. It is written by Write.
func (bs *BootSector) SetVolumeLabel(label [11]byte) {
	if bs.fatType == FAT32 {
		bs.FAT32.BSVolumeLabel = label
	} else {
		bs.FAT16.BSVolumeLabel = label
	}
}

// Bytes encodes the boot sector including the signature.
func (bs *BootSector) Bytes() ([]byte, error) {
	specific := bytes.Buffer{}
	var err error
	if bs.fatType == FAT32 {
		err = binary.Write(&specific, binary.LittleEndian, bs.FAT32)
	} else {
		err = binary.Write(&specific, binary.LittleEndian, bs.FAT16)
	}
	if err != nil {
		return nil, checkpoint.From(err)
	}
	copy(bs.FATSpecificData[:], specific.Bytes())

	bpb := bytes.Buffer{}
	if err := binary.Write(&bpb, binary.LittleEndian, bs.BPB); err != nil {
		return nil, checkpoint.From(err)
	}

	if bs.raw == nil {
		bs.raw = make([]byte, bootSectorSize)
	}
	copy(bs.raw, bpb.Bytes())
	bs.raw[510] = 0x55
	bs.raw[511] = 0xAA

	result := make([]byte, len(bs.raw))
	copy(result, bs.raw)
	return result, nil
}

// Write stores the boot sector and, for FAT32, its backup copy.
func (bs *BootSector) Write(dev BlockDevice) error {
	data, err := bs.Bytes()
	if err != nil {
		return err
	}

	if err := writeFull(dev, 0, data); err != nil {
		return err
	}

	if bs.fatType == FAT32 && bs.FAT32.BkBootSector != 0 {
		return writeFull(dev, int64(bs.FAT32.BkBootSector)*int64(bs.BytesPerSector), data)
	}
	return nil
}

// ReadFSInfo reads the FSInfo sector of a FAT32 volume.
func (bs *BootSector) ReadFSInfo(dev BlockDevice) (*FSInfo, error) {
	if bs.fatType != FAT32 || bs.FAT32.FSInfo == 0 {
		return nil, checkpoint.Newf(ErrNotSupported, "%v volumes have no FSInfo sector", bs.fatType)
	}

	raw := make([]byte, bootSectorSize)
	if err := readFull(dev, int64(bs.FAT32.FSInfo)*int64(bs.BytesPerSector), raw); err != nil {
		return nil, err
	}

	info := &FSInfo{}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, info); err != nil {
		return nil, checkpoint.From(err)
	}

	if info.LeadSignature != fsInfoLeadSignature || info.StructSignature != fsInfoStructSignature || info.TrailSignature != fsInfoTrailSignature {
		return nil, checkpoint.Newf(ErrInvalidBootSector, "invalid FSInfo signatures")
	}
	return info, nil
}

// WriteFSInfo stores the FSInfo sector of a FAT32 volume.
func (bs *BootSector) WriteFSInfo(dev BlockDevice, info *FSInfo) error {
	if bs.fatType != FAT32 || bs.FAT32.FSInfo == 0 {
		return checkpoint.Newf(ErrNotSupported, "%v volumes have no FSInfo sector", bs.fatType)
	}

	buf := bytes.Buffer{}
	if err := binary.Write(&buf, binary.LittleEndian, info); err != nil {
		return checkpoint.From(err)
	}
	return writeFull(dev, int64(bs.FAT32.FSInfo)*int64(bs.BytesPerSector), buf.Bytes())
}

func newFSInfo(free, nextFree uint32) *FSInfo {
	return &FSInfo{
		LeadSignature:   fsInfoLeadSignature,
		StructSignature: fsInfoStructSignature,
		FreeCount:       free,
		NextFree:        nextFree,
		TrailSignature:  fsInfoTrailSignature,
	}
}
