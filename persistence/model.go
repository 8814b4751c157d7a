package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jsobeck/AnniesLasso/codec"
	"github.com/jsobeck/AnniesLasso/internal/fs"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

// Snapshot is the serializable state of a trained model: everything needed to
// reconstruct it exactly, with no training data.
type Snapshot struct {
	Pixels int // P
	Terms  int // K
	Labels int // L

	// Coefficients holds the P×K coefficient matrix, row p contiguous.
	Coefficients []float64

	// Scatters and Lambdas hold the per-pixel intrinsic scatter and selected
	// regularization strength.
	Scatters []float64
	Lambdas  []float64

	// Flags holds the per-pixel outcome flags.
	Flags []uint8

	// Vectorizer is the configuration the model's vectorizer rebuilds from.
	Vectorizer vectorizer.Config

	// TermPixels optionally holds, per term, the set of pixels whose
	// coefficient for that term is non-zero. Nil means not stored; loaders
	// rebuild it from the coefficients.
	TermPixels []*roaring.Bitmap
}

func (s *Snapshot) validate() error {
	if s.Pixels <= 0 || s.Terms <= 0 || s.Labels <= 0 {
		return fmt.Errorf("%w: geometry %dx%d (%d labels)", ErrInvalidFormat, s.Pixels, s.Terms, s.Labels)
	}
	if len(s.Coefficients) != s.Pixels*s.Terms {
		return fmt.Errorf("%w: %d coefficients for %d pixels x %d terms", ErrInvalidFormat, len(s.Coefficients), s.Pixels, s.Terms)
	}
	if len(s.Scatters) != s.Pixels {
		return fmt.Errorf("%w: %d scatters for %d pixels", ErrInvalidFormat, len(s.Scatters), s.Pixels)
	}
	if len(s.Lambdas) != s.Pixels {
		return fmt.Errorf("%w: %d lambdas for %d pixels", ErrInvalidFormat, len(s.Lambdas), s.Pixels)
	}
	if len(s.Flags) != s.Pixels {
		return fmt.Errorf("%w: %d flags for %d pixels", ErrInvalidFormat, len(s.Flags), s.Pixels)
	}
	if s.TermPixels != nil && len(s.TermPixels) != s.Terms {
		return fmt.Errorf("%w: %d term bitmaps for %d terms", ErrInvalidFormat, len(s.TermPixels), s.Terms)
	}
	return nil
}

// Options configure snapshot writing.
type Options struct {
	// Codec encodes the vectorizer configuration section. Defaults to
	// codec.Default; the codec name is stored in the header so loads are
	// self-describing.
	Codec codec.Codec

	// Compression is applied per section. CompressionNone keeps the snapshot
	// mmap-loadable.
	Compression CompressionType

	// FileSystem backs SaveModelToFile. Defaults to the local filesystem;
	// overridable for fault-injection tests.
	FileSystem fs.FileSystem
}

func applyOptions(optFns []func(*Options)) Options {
	o := Options{
		Codec:       codec.Default,
		Compression: CompressionNone,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	return o
}

// WithCompression returns an option selecting the section compression.
func WithCompression(typ CompressionType) func(*Options) {
	return func(o *Options) {
		o.Compression = typ
	}
}

// WithCodec returns an option selecting the vectorizer-config codec.
func WithCodec(c codec.Codec) func(*Options) {
	return func(o *Options) {
		o.Codec = c
	}
}

// LoadOptions configure snapshot reading.
type LoadOptions struct {
	// ExpectedVectorizer, when set, is compared against the stored vectorizer
	// configuration; any difference fails the load with ErrIncompatible.
	ExpectedVectorizer *vectorizer.Config

	// FileSystem backs LoadModelFromFile. Defaults to the local filesystem.
	FileSystem fs.FileSystem
}

func applyLoadOptions(optFns []func(*LoadOptions)) LoadOptions {
	var o LoadOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// WithExpectedVectorizer returns a load option pinning the vectorizer
// configuration the snapshot must carry.
func WithExpectedVectorizer(cfg vectorizer.Config) func(*LoadOptions) {
	return func(o *LoadOptions) {
		o.ExpectedVectorizer = &cfg
	}
}

func align8(off uint64) uint64 {
	return (off + 7) &^ 7
}

// float64Bytes views vals as raw little-endian bytes without copying.
func float64Bytes(vals []float64) ([]byte, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	if err := validateFloat64SliceAlignment(vals); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vals[0])), len(vals)*8), nil
}

// float64sFromBytes copies raw little-endian bytes into a fresh, aligned
// float64 slice.
func float64sFromBytes(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float64, len(b)/8)
	view := unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), len(b))
	copy(view, b)
	return out
}

// encodeTermBitmaps serializes the per-term pixel sets: for each term a
// uint32 length prefix followed by the standard roaring encoding.
func encodeTermBitmaps(bitmaps []*roaring.Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	for _, bm := range bitmaps {
		var b []byte
		if bm != nil {
			var err error
			b, err = bm.ToBytes()
			if err != nil {
				return nil, err
			}
		}
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(b)))
		buf.Write(lenPrefix[:])
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// decodeTermBitmaps reverses encodeTermBitmaps. The bitmaps are fully
// materialized on the heap so they never alias the input buffer.
func decodeTermBitmaps(data []byte, terms int) ([]*roaring.Bitmap, error) {
	out := make([]*roaring.Bitmap, terms)
	off := 0
	for k := 0; k < terms; k++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("%w: term bitmap section truncated", ErrInvalidFormat)
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+n > len(data) {
			return nil, fmt.Errorf("%w: term bitmap %d truncated", ErrInvalidFormat, k)
		}
		bm := roaring.New()
		if n > 0 {
			if _, err := bm.ReadFrom(bytes.NewReader(data[off : off+n])); err != nil {
				return nil, fmt.Errorf("%w: term bitmap %d: %v", ErrInvalidFormat, k, err)
			}
		}
		out[k] = bm
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after term bitmaps", ErrInvalidFormat, len(data)-off)
	}
	return out, nil
}

// SaveModel writes a snapshot to w in the sectioned binary format. The whole
// stream is covered by a trailing CRC32.
func SaveModel(w io.Writer, snap *Snapshot, optFns ...func(*Options)) error {
	o := applyOptions(optFns)

	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidFormat)
	}
	if err := snap.validate(); err != nil {
		return err
	}

	codecName := o.Codec.Name()
	if len(codecName) == 0 || len(codecName) > 255 {
		return fmt.Errorf("%w: codec name %q", ErrInvalidFormat, codecName)
	}

	// Assemble the raw section payloads.
	coefBytes, err := float64Bytes(snap.Coefficients)
	if err != nil {
		return err
	}
	scatterBytes, err := float64Bytes(snap.Scatters)
	if err != nil {
		return err
	}
	lambdaBytes, err := float64Bytes(snap.Lambdas)
	if err != nil {
		return err
	}

	vecBytes, err := o.Codec.Marshal(snap.Vectorizer)
	if err != nil {
		return fmt.Errorf("encode vectorizer config: %w", err)
	}

	var bitmapBytes []byte
	if snap.TermPixels != nil {
		bitmapBytes, err = encodeTermBitmaps(snap.TermPixels)
		if err != nil {
			return fmt.Errorf("encode term bitmaps: %w", err)
		}
	}

	raw := [sectionCount][]byte{coefBytes, scatterBytes, lambdaBytes, snap.Flags, vecBytes, bitmapBytes}
	kinds := [sectionCount]uint32{
		SectionCoefficients, SectionScatters, SectionLambdas,
		SectionFlags, SectionVectorizer, SectionTermBitmaps,
	}

	// Compress and lay out the sections on 8-byte boundaries.
	stored := [sectionCount][]byte{}
	entries := make([]SectionEntry, sectionCount)
	offset := uint64(headerSize + len(codecName) + sectionCount*sectionEntrySize)
	for i := range raw {
		s, err := compressSection(raw[i], o.Compression)
		if err != nil {
			return err
		}
		stored[i] = s

		offset = align8(offset)
		entries[i] = SectionEntry{
			Kind:      kinds[i],
			Offset:    offset,
			RawLen:    uint64(len(raw[i])),
			StoredLen: uint64(len(s)),
		}
		offset += uint64(len(s))
	}

	header := FileHeader{
		Compression:  uint8(o.Compression),
		CodecNameLen: uint8(len(codecName)),
		SectionCount: sectionCount,
		Pixels:       uint32(snap.Pixels),
		Terms:        uint32(snap.Terms),
		Labels:       uint32(snap.Labels),
		DataOffset:   entries[0].Offset,
	}

	// Everything before the trailer runs through the payload checksum.
	cw := NewChecksumWriter(w)
	sw := NewSnapshotWriter(cw)

	if err := sw.WriteHeader(&header); err != nil {
		return err
	}
	if err := sw.WriteBytes([]byte(codecName)); err != nil {
		return err
	}
	if err := sw.WriteSectionTable(entries); err != nil {
		return err
	}

	var pad [8]byte
	pos := uint64(headerSize + len(codecName) + sectionCount*sectionEntrySize)
	for i := range stored {
		if gap := entries[i].Offset - pos; gap > 0 {
			if err := sw.WriteBytes(pad[:gap]); err != nil {
				return err
			}
			pos += gap
		}
		if err := sw.WriteBytes(stored[i]); err != nil {
			return err
		}
		pos += uint64(len(stored[i]))
	}

	// Trailing CRC32 over everything above, written outside the checksummer.
	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], cw.Sum())
	_, err = w.Write(trailer[:])
	return err
}

// LoadModel reads a snapshot from r, validating magic, version, geometry and
// both checksums.
func LoadModel(r io.Reader, optFns ...func(*LoadOptions)) (*Snapshot, error) {
	o := applyLoadOptions(optFns)

	cr := NewChecksumReader(r)
	sr := NewSnapshotReader(cr)

	header, err := sr.ReadHeader()
	if err != nil {
		return nil, err
	}

	nameBytes, err := sr.ReadBytes(int(header.CodecNameLen))
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(string(nameBytes))
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidFormat, string(nameBytes))
	}

	entries, err := sr.ReadSectionTable(int(header.SectionCount))
	if err != nil {
		return nil, err
	}

	compression := CompressionType(header.Compression)
	p := int(header.Pixels)
	k := int(header.Terms)

	snap := &Snapshot{
		Pixels: p,
		Terms:  k,
		Labels: int(header.Labels),
	}

	pos := uint64(headerSize) + uint64(header.CodecNameLen) + uint64(header.SectionCount)*sectionEntrySize
	for i := range entries {
		e := &entries[i]
		if e.Kind != uint32(i+1) {
			return nil, fmt.Errorf("%w: section %d has kind %d", ErrInvalidFormat, i, e.Kind)
		}
		if e.Offset < pos {
			return nil, fmt.Errorf("%w: section %d overlaps its predecessor", ErrInvalidFormat, i)
		}
		if err := sr.Skip(int(e.Offset - pos)); err != nil {
			return nil, err
		}

		switch {
		case compression == CompressionNone && e.Kind <= SectionLambdas:
			// Read numeric sections directly into aligned float64 storage.
			if e.StoredLen%8 != 0 {
				return nil, fmt.Errorf("%w: float section length %d", ErrInvalidFormat, e.StoredLen)
			}
			vals, err := sr.ReadFloat64Slice(int(e.StoredLen / 8))
			if err != nil {
				return nil, err
			}
			if err := assignFloatSection(snap, e.Kind, vals, header); err != nil {
				return nil, err
			}
		default:
			storedBytes, err := sr.ReadBytes(int(e.StoredLen))
			if err != nil {
				return nil, err
			}
			payload, err := decompressSection(storedBytes, compression, int(e.RawLen))
			if err != nil {
				return nil, err
			}
			if e.Kind <= SectionLambdas {
				if err := assignFloatSection(snap, e.Kind, float64sFromBytes(payload), header); err != nil {
					return nil, err
				}
			} else if err := assignByteSection(snap, e.Kind, payload, c, header); err != nil {
				return nil, err
			}
		}
		pos = e.Offset + e.StoredLen
	}

	// Trailing CRC32: read outside the checksummer and compare.
	var trailer [trailerSize]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, err
	}
	if err := cr.Verify(binary.LittleEndian.Uint32(trailer[:])); err != nil {
		return nil, err
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

func assignFloatSection(snap *Snapshot, kind uint32, vals []float64, header *FileHeader) error {
	p := int(header.Pixels)
	k := int(header.Terms)

	switch kind {
	case SectionCoefficients:
		if len(vals) != p*k {
			return fmt.Errorf("%w: %d coefficients, expected %d", ErrInvalidFormat, len(vals), p*k)
		}
		snap.Coefficients = vals
	case SectionScatters:
		if len(vals) != p {
			return fmt.Errorf("%w: %d scatters, expected %d", ErrInvalidFormat, len(vals), p)
		}
		snap.Scatters = vals
	case SectionLambdas:
		if len(vals) != p {
			return fmt.Errorf("%w: %d lambdas, expected %d", ErrInvalidFormat, len(vals), p)
		}
		snap.Lambdas = vals
	default:
		return fmt.Errorf("%w: unexpected float section %d", ErrInvalidFormat, kind)
	}
	return nil
}

func assignByteSection(snap *Snapshot, kind uint32, payload []byte, c codec.Codec, header *FileHeader) error {
	switch kind {
	case SectionFlags:
		if len(payload) != int(header.Pixels) {
			return fmt.Errorf("%w: %d flags, expected %d", ErrInvalidFormat, len(payload), header.Pixels)
		}
		snap.Flags = append([]uint8(nil), payload...)
	case SectionVectorizer:
		if err := c.Unmarshal(payload, &snap.Vectorizer); err != nil {
			return fmt.Errorf("%w: vectorizer config: %v", ErrInvalidFormat, err)
		}
	case SectionTermBitmaps:
		if len(payload) == 0 {
			snap.TermPixels = nil
			return nil
		}
		bitmaps, err := decodeTermBitmaps(payload, int(header.Terms))
		if err != nil {
			return err
		}
		snap.TermPixels = bitmaps
	default:
		return fmt.Errorf("%w: unexpected section %d", ErrInvalidFormat, kind)
	}
	return nil
}

// SaveModelToFile writes a snapshot with the atomic save ritual.
func SaveModelToFile(path string, snap *Snapshot, optFns ...func(*Options)) error {
	o := applyOptions(optFns)
	return SaveToFile(o.FileSystem, path, func(w io.Writer) error {
		return SaveModel(w, snap, optFns...)
	})
}

// LoadModelFromFile reads a snapshot from disk into memory.
func LoadModelFromFile(path string, optFns ...func(*LoadOptions)) (*Snapshot, error) {
	o := applyLoadOptions(optFns)

	var snap *Snapshot
	err := LoadFromFile(o.FileSystem, path, func(r io.Reader) error {
		var err error
		snap, err = LoadModel(r, optFns...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
