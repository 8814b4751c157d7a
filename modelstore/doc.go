// Package modelstore abstracts where trained-model snapshots live.
//
// A Store holds immutable snapshot files addressed by name: a local
// directory, an in-memory map for tests, or an object store (see the s3
// and minio subpackages). Snapshots are written whole and never mutated,
// so every backend only needs atomic whole-object semantics.
//
// Caching wraps a remote Store with a local directory cache, downloading
// each snapshot at most once and verifying its integrity before use.
package modelstore
