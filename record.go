package fatstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/aligator/fatstore/checkpoint"
	"golang.org/x/text/encoding/charmap"
)

// RecordSize is the size of one directory record on disk.
const RecordSize = 32

const (
	markerFree    = 0x00
	markerDeleted = 0xE5
	// markerKanji replaces a leading 0xE5 of a real name, which would otherwise mark the record as deleted.
	markerKanji = 0x05
)

// RecordKind tells what a directory slot contains.
type RecordKind int

const (
	// RecordFree is an unused slot. All slots behind the first free one are free, too.
	RecordFree RecordKind = iota
	// RecordDeleted is a slot of a removed entry which may be reused.
	RecordDeleted
	// RecordEntry is a regular file or directory.
	RecordEntry
	// RecordLabel holds the volume label.
	RecordLabel
	// RecordLongName is a part of a long file name. It is kept byte by byte but not interpreted.
	RecordLongName
)

func (k RecordKind) String() string {
	switch k {
	case RecordFree:
		return "free"
	case RecordDeleted:
		return "deleted"
	case RecordEntry:
		return "entry"
	case RecordLabel:
		return "label"
	case RecordLongName:
		return "long name"
	default:
		return fmt.Sprintf("RecordKind(%d)", int(k))
	}
}

// Record is one slot of a directory.
type Record struct {
	Kind   RecordKind
	Header EntryHeader
}

func kindOf(h EntryHeader) RecordKind {
	switch {
	case h.Name[0] == markerFree:
		return RecordFree
	case h.Name[0] == markerDeleted:
		return RecordDeleted
	case h.Attribute&0x3F == AttrLongName:
		return RecordLongName
	case h.Attribute&AttrVolumeID != 0:
		return RecordLabel
	default:
		return RecordEntry
	}
}

// isProtectedLabel reports a label marked record which is hidden, read only and system at the same time.
// Such records are not used for the volume label.
func (r Record) isProtectedLabel() bool {
	const protected = AttrHidden | AttrReadOnly | AttrSystem
	return r.Header.Attribute&protected == protected
}

// Name returns the decoded name. Entries are returned as "NAME.EXT", labels as one string.
// Free records have no name.
func (r Record) Name() string {
	switch r.Kind {
	case RecordEntry:
		name := decodeName(r.Header.Name[:8])
		ext := decodeName(r.Header.Name[8:11])
		if ext != "" {
			name += "." + ext
		}
		return name
	case RecordLabel:
		return decodeName(r.Header.Name[:])
	default:
		return ""
	}
}

// decodeRecords deserializes all complete records of data.
func decodeRecords(data []byte) ([]Record, error) {
	records := make([]Record, len(data)/RecordSize)
	reader := bytes.NewReader(data)

	end := false
	for i := range records {
		var h EntryHeader
		if err := binary.Read(reader, binary.LittleEndian, &h); err != nil {
			return nil, checkpoint.From(err)
		}

		// Everything behind the first free record is free.
		if end {
			continue
		}

		records[i] = Record{Kind: kindOf(h), Header: h}
		if records[i].Kind == RecordFree {
			records[i].Header = EntryHeader{}
			end = true
		}
	}
	return records, nil
}

// encodeRecords serializes the records into a buffer of len(records) * RecordSize bytes.
func encodeRecords(records []Record) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(records)*RecordSize))
	for _, r := range records {
		h := r.Header
		switch r.Kind {
		case RecordFree:
			h = EntryHeader{}
		case RecordDeleted:
			h.Name[0] = markerDeleted
		}

		if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
			return nil, checkpoint.From(err)
		}
	}
	return buf.Bytes(), nil
}

// encodeName converts s to code page 437. It fails for runes the code page does not contain.
func encodeName(s string) ([]byte, error) {
	encoded, err := charmap.CodePage437.NewEncoder().String(s)
	if err != nil {
		return nil, err
	}

	result := []byte(encoded)
	if len(result) > 0 && result[0] == markerDeleted {
		result[0] = markerKanji
	}
	return result, nil
}

// decodeName converts a space padded code page 437 name into a string.
func decodeName(b []byte) string {
	name := make([]byte, len(b))
	copy(name, b)
	if len(name) > 0 && name[0] == markerKanji {
		name[0] = markerDeleted
	}

	decoded, err := charmap.CodePage437.NewDecoder().Bytes(name)
	if err != nil {
		// Every byte maps to a rune in code page 437.
		decoded = name
	}
	return strings.TrimRight(string(decoded), " \x00")
}

// labelName builds the 11 name bytes of a label: the first 8 characters are
// the name, the rest is the extension, both padded with spaces.
func labelName(label string) ([11]byte, error) {
	var result [11]byte
	for i := range result {
		result[i] = ' '
	}

	encoded, err := encodeName(label)
	if err != nil {
		return result, checkpoint.Wrap(err, ErrInvalidLabel)
	}
	if len(encoded) > len(result) {
		return result, checkpoint.Newf(ErrInvalidLabel, "%q is longer than 11 characters", label)
	}

	name := encoded
	var ext []byte
	if len(encoded) > 8 {
		name = encoded[:8]
		ext = encoded[8:]
	}
	copy(result[:8], name)
	copy(result[8:], ext)
	return result, nil
}

// invalidShortNameChars may never be part of a short name.
const invalidShortNameChars = "\"*+,./:;<=>?[\\]|"

// ShortName converts a name like "hello.txt" into the 11 bytes of a short name record ("HELLO   TXT").
// It returns fs.ErrInvalid for names which do not fit into 8.3 characters.
func ShortName(name string) ([11]byte, error) {
	var result [11]byte
	for i := range result {
		result[i] = ' '
	}

	if name == "." || name == ".." {
		copy(result[:], name)
		return result, nil
	}

	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}

	for _, part := range []string{base, ext} {
		if strings.ContainsAny(part, invalidShortNameChars) || strings.ContainsRune(part, ' ') {
			return result, fmt.Errorf("%w: %q contains characters not allowed in a short name", fs.ErrInvalid, name)
		}
		for _, r := range part {
			if r < 0x20 || r == 0x7F {
				return result, fmt.Errorf("%w: %q contains control characters", fs.ErrInvalid, name)
			}
		}
	}

	encodedBase, err := encodeName(strings.ToUpper(base))
	if err != nil {
		return result, fmt.Errorf("%w: %q: %v", fs.ErrInvalid, name, err)
	}
	encodedExt, err := encodeName(strings.ToUpper(ext))
	if err != nil {
		return result, fmt.Errorf("%w: %q: %v", fs.ErrInvalid, name, err)
	}

	if len(encodedBase) == 0 || len(encodedBase) > 8 || len(encodedExt) > 3 {
		return result, fmt.Errorf("%w: %q is no 8.3 name", fs.ErrInvalid, name)
	}

	copy(result[:8], encodedBase)
	copy(result[8:], encodedExt)
	return result, nil
}

// NewEntry creates the header of a regular entry.
func NewEntry(name string, attr byte, cluster uint32, size uint32, modTime time.Time) (EntryHeader, error) {
	shortName, err := ShortName(name)
	if err != nil {
		return EntryHeader{}, err
	}

	h := EntryHeader{
		Name:           shortName,
		Attribute:      attr &^ AttrVolumeID,
		CreateTime:     EncodeTime(modTime),
		CreateDate:     EncodeDate(modTime),
		LastAccessDate: EncodeDate(modTime),
		WriteTime:      EncodeTime(modTime),
		WriteDate:      EncodeDate(modTime),
		FileSize:       size,
	}
	h.SetFirstCluster(cluster)
	return h, nil
}
