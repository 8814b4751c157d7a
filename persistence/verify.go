package persistence

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jsobeck/AnniesLasso/internal/fs"
)

// VerifySnapshot streams a snapshot through its integrity checks without
// decoding it: header magic, version, geometry and checksum, then the
// trailing CRC32 over the whole payload. Sections are skipped, not parsed,
// so verification costs one sequential read and no allocation proportional
// to the model.
func VerifySnapshot(r io.Reader) error {
	cr := NewChecksumReader(r)
	sr := NewSnapshotReader(cr)

	header, err := sr.ReadHeader()
	if err != nil {
		return err
	}
	if err := sr.Skip(int(header.CodecNameLen)); err != nil {
		return err
	}
	entries, err := sr.ReadSectionTable(int(header.SectionCount))
	if err != nil {
		return err
	}

	pos := uint64(headerSize) + uint64(header.CodecNameLen) + uint64(header.SectionCount)*sectionEntrySize
	for _, e := range entries {
		if e.Offset < pos {
			return fmt.Errorf("%w: section %d overlaps at offset %d", ErrInvalidFormat, e.Kind, e.Offset)
		}
		if err := sr.Skip(int(e.Offset - pos + e.StoredLen)); err != nil {
			return err
		}
		pos = e.Offset + e.StoredLen
	}

	// The trailer sits outside the checksummed region.
	sum := cr.Sum()
	var trailer [trailerSize]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return err
	}
	if expected := binary.LittleEndian.Uint32(trailer[:]); expected != sum {
		return &ChecksumMismatchError{Expected: expected, Actual: sum}
	}
	return nil
}

// VerifySnapshotFile runs VerifySnapshot over a file on disk.
func VerifySnapshotFile(fsys fs.FileSystem, path string) error {
	if fsys == nil {
		fsys = fs.Default
	}
	return LoadFromFile(fsys, path, VerifySnapshot)
}
