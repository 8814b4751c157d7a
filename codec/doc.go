// Package codec centralizes structured-payload encoding for persisted
// artifacts: vectorizer configurations inside model snapshots and catalog
// entries in the manifest.
//
// Codec selection is intentionally a breaking-change boundary: if you change
// codecs, persisted bytes created by older codecs may no longer decode.
// Persisted formats therefore store the codec name and resolve it with
// [ByName] on load.
package codec
