// Package persistence provides binary serialization for trained model
// snapshots.
//
// A snapshot is a sectioned container: a fixed 64-byte header ("CNN1" magic,
// version, geometry, codec name, compression type), a section table, the
// payload sections (coefficients, scatters, lambdas, flags, vectorizer
// configuration, term-usage bitmaps) and a trailing CRC32 over the whole
// stream. Numeric sections are raw little-endian float64, so an uncompressed
// snapshot can be loaded zero-copy through a read-only memory mapping.
//
// PLATFORM REQUIREMENTS:
// - Architecture: amd64 or arm64 only
// - Endianness: Little-endian (native on x86_64 and ARM64)
// - Alignment: 8-byte for float64 sections
//
// The unsafe operations in this package are verified at runtime with alignment
// checks and platform validation. See safety.go for implementation details.
package persistence
