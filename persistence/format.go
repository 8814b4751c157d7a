package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies model snapshot files (ASCII: "CNN1").
	MagicNumber = 0x434E4E31
	// Version is the current snapshot format version.
	Version = 1

	// headerSize is the fixed byte length of FileHeader on disk.
	headerSize = 64
	// sectionEntrySize is the byte length of one section-table entry.
	sectionEntrySize = 32
	// trailerSize is the byte length of the trailing payload checksum.
	trailerSize = 4
)

// Section kinds, in file order.
const (
	SectionCoefficients uint32 = 1
	SectionScatters     uint32 = 2
	SectionLambdas      uint32 = 3
	SectionFlags        uint32 = 4
	SectionVectorizer   uint32 = 5
	SectionTermBitmaps  uint32 = 6

	sectionCount = 6
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported snapshot version")
	// ErrChecksumMismatch is the sentinel all checksum failures unwrap to.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrInvalidFormat is returned for structurally malformed snapshots.
	ErrInvalidFormat = errors.New("malformed snapshot")
	// ErrCompressedSnapshot is returned when a zero-copy open is attempted on
	// a compressed snapshot. Use LoadModelFromFile instead.
	ErrCompressedSnapshot = errors.New("snapshot is compressed")
)

// ErrIncompatible is returned when a snapshot's geometry or vectorizer
// configuration does not match what the caller expects.
type ErrIncompatible struct {
	Field string
	Want  string
	Got   string
}

func (e *ErrIncompatible) Error() string {
	return fmt.Sprintf("incompatible snapshot: %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// FileHeader is the 64-byte header at the start of every snapshot file.
// The checksum sits in the final four bytes and covers the preceding sixty.
type FileHeader struct {
	Magic        uint32 // 0x434E4E31 ("CNN1")
	Version      uint32 // Snapshot format version
	Compression  uint8  // CompressionType applied to sections
	CodecNameLen uint8  // Length of the codec name following the header
	SectionCount uint16 // Number of section-table entries
	Pixels       uint32 // P
	Terms        uint32 // K
	Labels       uint32 // L
	DataOffset   uint64 // File offset of the first section payload
	Reserved     [28]byte
	Checksum     uint32 // CRC32 of header bytes [0, 60)
}

// SectionEntry is one row of the section table: where a section's payload
// lives and how large it is raw and as stored.
type SectionEntry struct {
	Kind      uint32
	Pad       uint32
	Offset    uint64 // Absolute file offset, 8-byte aligned
	RawLen    uint64 // Uncompressed payload length
	StoredLen uint64 // Bytes occupied in the file
}

func (h *FileHeader) validate() error {
	if h.Magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	if h.SectionCount != sectionCount {
		return fmt.Errorf("%w: %d sections, expected %d", ErrInvalidFormat, h.SectionCount, sectionCount)
	}
	if h.Pixels == 0 || h.Terms == 0 || h.Labels == 0 {
		return fmt.Errorf("%w: empty geometry %dx%d (%d labels)", ErrInvalidFormat, h.Pixels, h.Terms, h.Labels)
	}
	return nil
}
