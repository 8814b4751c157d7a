package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"

	"github.com/jsobeck/AnniesLasso/codec"
	"github.com/jsobeck/AnniesLasso/internal/mmap"
)

// OpenModelMmap opens an uncompressed snapshot with its numeric sections
// backed directly by a read-only memory mapping: coefficients, scatters and
// lambdas alias the mapped file and are never copied.
//
// The returned closer owns the mapping; the snapshot's slices become invalid
// once it is closed. Compressed snapshots fail with ErrCompressedSnapshot.
func OpenModelMmap(path string, optFns ...func(*LoadOptions)) (*Snapshot, io.Closer, error) {
	o := applyLoadOptions(optFns)

	m, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}

	snap, err := snapshotFromMapped(m, o)
	if err != nil {
		_ = m.Close()
		return nil, nil, err
	}
	return snap, m, nil
}

func snapshotFromMapped(m *mmap.Mapping, o LoadOptions) (*Snapshot, error) {
	data := m.Bytes()
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes is too small for a snapshot", ErrInvalidFormat, len(data))
	}

	sr := NewSnapshotReader(bytes.NewReader(data[:headerSize]))
	header, err := sr.ReadHeader()
	if err != nil {
		return nil, err
	}

	if CompressionType(header.Compression) != CompressionNone {
		return nil, fmt.Errorf("%w: %s", ErrCompressedSnapshot, CompressionType(header.Compression))
	}

	// The integrity scan touches every page once; tell the kernel.
	_ = m.Advise(mmap.AccessSequential)
	payloadEnd := len(data) - trailerSize
	want := binary.LittleEndian.Uint32(data[payloadEnd:])
	if sum := CalculateChecksum(data[:payloadEnd]); sum != want {
		return nil, &ChecksumMismatchError{Expected: want, Actual: sum}
	}
	_ = m.Advise(mmap.AccessRandom)

	nameEnd := headerSize + int(header.CodecNameLen)
	tableEnd := nameEnd + int(header.SectionCount)*sectionEntrySize
	if tableEnd > payloadEnd {
		return nil, fmt.Errorf("%w: section table extends past payload", ErrInvalidFormat)
	}

	c, ok := codec.ByName(string(data[headerSize:nameEnd]))
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidFormat, string(data[headerSize:nameEnd]))
	}

	entries, err := NewSnapshotReader(bytes.NewReader(data[nameEnd:tableEnd])).ReadSectionTable(int(header.SectionCount))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Pixels: int(header.Pixels),
		Terms:  int(header.Terms),
		Labels: int(header.Labels),
	}

	for i := range entries {
		e := &entries[i]
		if e.Kind != uint32(i+1) {
			return nil, fmt.Errorf("%w: section %d has kind %d", ErrInvalidFormat, i, e.Kind)
		}
		if e.StoredLen != e.RawLen {
			return nil, fmt.Errorf("%w: uncompressed section %d stores %d bytes for %d raw", ErrInvalidFormat, i, e.StoredLen, e.RawLen)
		}
		end := e.Offset + e.StoredLen
		if e.Offset > uint64(payloadEnd) || end > uint64(payloadEnd) {
			return nil, fmt.Errorf("%w: section %d extends past payload", ErrInvalidFormat, i)
		}
		payload := data[e.Offset:end]

		switch e.Kind {
		case SectionCoefficients, SectionScatters, SectionLambdas:
			vals, err := mappedFloat64s(data, int(e.Offset), int(e.StoredLen))
			if err != nil {
				return nil, err
			}
			if err := assignFloatSection(snap, e.Kind, vals, header); err != nil {
				return nil, err
			}
		case SectionFlags:
			if len(payload) != snap.Pixels {
				return nil, fmt.Errorf("%w: %d flags, expected %d", ErrInvalidFormat, len(payload), snap.Pixels)
			}
			// Flags alias the mapping like the float sections.
			snap.Flags = payload
		default:
			if err := assignByteSection(snap, e.Kind, payload, c, header); err != nil {
				return nil, err
			}
		}
	}

	if err := snap.validate(); err != nil {
		return nil, err
	}

	if o.ExpectedVectorizer != nil && !snap.Vectorizer.Equal(*o.ExpectedVectorizer) {
		return nil, &ErrIncompatible{
			Field: "vectorizer",
			Want:  o.ExpectedVectorizer.Type,
			Got:   snap.Vectorizer.Type,
		}
	}

	return snap, nil
}

// mappedFloat64s reinterprets a mapped byte range as float64s in place.
// Safety: Validates 8-byte alignment before the unsafe conversion; section
// offsets are aligned by the writer and mappings are page-aligned.
func mappedFloat64s(data []byte, off, length int) ([]float64, error) {
	if length == 0 {
		return nil, nil
	}
	if length%8 != 0 {
		return nil, fmt.Errorf("%w: float section length %d", ErrInvalidFormat, length)
	}
	if err := validateByteOffsetAlignment(data, off); err != nil {
		return nil, err
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[off])), length/8), nil
}
