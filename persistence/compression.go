package persistence

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the compression algorithm applied to sections.
type CompressionType uint8

const (
	// CompressionNone indicates no compression (required for mmap loading).
	CompressionNone CompressionType = 0
	// CompressionLZ4 indicates LZ4 block compression (fast).
	CompressionLZ4 CompressionType = 1
	// CompressionZstd indicates zstd block compression (better ratio).
	CompressionZstd CompressionType = 2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// zstd encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Compressed sections start with an 8-byte block header:
// [UncompressedSize uint32][CompressedSize uint32][Data...]
// If CompressedSize == 0, the block is stored uncompressed.
const blockHeaderSize = 8

// compressSection compresses a section payload. For CompressionNone the data
// is returned as-is (no block header), keeping raw sections mmap-viewable.
// For the other types the result carries the block header; incompressible
// data (ratio > 0.9) is stored raw behind the header.
func compressSection(data []byte, typ CompressionType) ([]byte, error) {
	if typ == CompressionNone {
		return data, nil
	}

	var compressed []byte
	var err error

	switch typ {
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return nil, fmt.Errorf("%w: compression type %d", ErrInvalidFormat, typ)
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		result := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[4:], 0) // 0 = stored raw
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(compressed)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // Incompressible
	}
	return compressed[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// decompressSection reverses compressSection. rawLen is the expected
// uncompressed length from the section table; any disagreement is corruption.
func decompressSection(data []byte, typ CompressionType, rawLen int) ([]byte, error) {
	if typ == CompressionNone {
		if len(data) != rawLen {
			return nil, fmt.Errorf("%w: section is %d bytes, expected %d", ErrInvalidFormat, len(data), rawLen)
		}
		return data, nil
	}

	if len(data) < blockHeaderSize {
		return nil, fmt.Errorf("%w: section too small for block header", ErrInvalidFormat)
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if int(uncompressedSize) != rawLen {
		return nil, fmt.Errorf("%w: block declares %d bytes, table expects %d", ErrInvalidFormat, uncompressedSize, rawLen)
	}

	if compressedSize == 0 {
		// Stored raw behind the block header.
		if uint32(len(data)) < blockHeaderSize+uncompressedSize {
			return nil, fmt.Errorf("%w: stored block truncated", ErrInvalidFormat)
		}
		return data[blockHeaderSize : blockHeaderSize+uncompressedSize], nil
	}

	if uint32(len(data)) < blockHeaderSize+compressedSize {
		return nil, fmt.Errorf("%w: compressed block truncated", ErrInvalidFormat)
	}
	compressedData := data[blockHeaderSize : blockHeaderSize+compressedSize]

	switch typ {
	case CompressionLZ4:
		result := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(compressedData, result)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", ErrInvalidFormat, n, uncompressedSize)
		}
		return result, nil

	case CompressionZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(compressedData, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", ErrInvalidFormat, len(decoded), uncompressedSize)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: compression type %d", ErrInvalidFormat, typ)
	}
}
