package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/jsobeck/AnniesLasso/internal/fs"
)

// SnapshotWriter writes snapshot payloads in optimized binary format.
type SnapshotWriter struct {
	w         io.Writer
	byteOrder binary.ByteOrder
}

// NewSnapshotWriter creates a new binary writer.
func NewSnapshotWriter(w io.Writer) *SnapshotWriter {
	return &SnapshotWriter{
		w:         w,
		byteOrder: binary.LittleEndian, // Native on x86/ARM
	}
}

// WriteHeader writes the file header, filling in magic, version and the
// header checksum.
func (sw *SnapshotWriter) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	header.Checksum = 0

	var buf bytes.Buffer
	if err := binary.Write(&buf, sw.byteOrder, header); err != nil {
		return err
	}
	b := buf.Bytes()
	if len(b) != headerSize {
		return fmt.Errorf("%w: header encodes to %d bytes", ErrInvalidFormat, len(b))
	}

	header.Checksum = CalculateChecksum(b[:headerSize-trailerSize])
	sw.byteOrder.PutUint32(b[headerSize-trailerSize:], header.Checksum)

	_, err := sw.w.Write(b)
	return err
}

// WriteSectionTable writes the section-table entries after the codec name.
func (sw *SnapshotWriter) WriteSectionTable(entries []SectionEntry) error {
	for i := range entries {
		if err := binary.Write(sw.w, sw.byteOrder, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFloat64Slice writes a float64 slice as raw bytes (zero-copy compatible).
// Safety: Validates alignment before unsafe conversion.
func (sw *SnapshotWriter) WriteFloat64Slice(vals []float64) error {
	if len(vals) == 0 {
		return nil
	}

	if err := validateFloat64SliceAlignment(vals); err != nil {
		return err
	}

	// Direct memory conversion (no allocation)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vals[0])), len(vals)*8)
	_, err := sw.w.Write(byteSlice)
	return err
}

// WriteBytes writes a raw byte slice.
func (sw *SnapshotWriter) WriteBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := sw.w.Write(b)
	return err
}

// SnapshotReader reads snapshot payloads from binary format.
type SnapshotReader struct {
	r         io.Reader
	byteOrder binary.ByteOrder
}

// NewSnapshotReader creates a new binary reader.
func NewSnapshotReader(r io.Reader) *SnapshotReader {
	return &SnapshotReader{
		r:         r,
		byteOrder: binary.LittleEndian,
	}
}

// ReadHeader reads and validates the file header: magic, version, geometry
// and the header checksum.
func (sr *SnapshotReader) ReadHeader() (*FileHeader, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(sr.r, raw); err != nil {
		return nil, err
	}

	var header FileHeader
	if err := binary.Read(bytes.NewReader(raw), sr.byteOrder, &header); err != nil {
		return nil, err
	}

	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}
	if sum := CalculateChecksum(raw[:headerSize-trailerSize]); sum != header.Checksum {
		return nil, &ChecksumMismatchError{Expected: header.Checksum, Actual: sum}
	}
	if err := header.validate(); err != nil {
		return nil, err
	}
	return &header, nil
}

// ReadSectionTable reads count section-table entries.
func (sr *SnapshotReader) ReadSectionTable(count int) ([]SectionEntry, error) {
	entries := make([]SectionEntry, count)
	for i := range entries {
		if err := binary.Read(sr.r, sr.byteOrder, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ReadFloat64Slice reads a float64 slice.
func (sr *SnapshotReader) ReadFloat64Slice(count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}
	vals := make([]float64, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vals[0])), count*8)
	if _, err := io.ReadFull(sr.r, byteSlice); err != nil {
		return nil, err
	}
	return vals, nil
}

// ReadBytes reads exactly count raw bytes.
func (sr *SnapshotReader) ReadBytes(count int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	b := make([]byte, count)
	if _, err := io.ReadFull(sr.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Skip discards exactly count bytes.
func (sr *SnapshotReader) Skip(count int) error {
	if count == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, sr.r, int64(count))
	return err
}

// SaveToFile writes a snapshot atomically: temp file in the target directory,
// buffered writes, fsync, rename, directory fsync. The fs.FileSystem
// indirection exists for fault-injection tests.
func SaveToFile(fsys fs.FileSystem, filename string, writeFunc func(io.Writer) error) error {
	if fsys == nil {
		fsys = fs.Default
	}
	dir := filepath.Dir(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmpName := filename + ".tmp"
	tmp, err := fsys.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
	}

	// Use buffered writer to batch writes (critical for performance)
	buf := bufio.NewWriterSize(tmp, 256*1024) // 256KB buffer
	if err := writeFunc(buf); err != nil {
		cleanup()
		return err
	}
	if err := buf.Flush(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}

	// Atomically replace target.
	if err := fsys.Rename(tmpName, filename); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := fsys.OpenFile(dir, os.O_RDONLY, 0); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// LoadFromFile streams a snapshot through readFunc with buffered reads.
func LoadFromFile(fsys fs.FileSystem, filename string, readFunc func(io.Reader) error) error {
	if fsys == nil {
		fsys = fs.Default
	}

	f, err := fsys.OpenFile(filename, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewReaderSize(f, 256*1024) // 256KB buffer
	return readFunc(buf)
}
