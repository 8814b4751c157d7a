package persistence

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsobeck/AnniesLasso/internal/fs"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

func testConfig() vectorizer.Config {
	return vectorizer.Config{
		Type:      "polynomial",
		Labels:    []string{"Teff", "logg"},
		Fiducials: []float64{5000, 3.5},
		Scales:    []float64{1000, 1.5},
		Terms:     "Teff + logg + Teff*logg",
	}
}

// testSnapshot builds a small deterministic snapshot: 7 pixels, 4 terms,
// 2 labels, with exact zeros sprinkled through the coefficients.
func testSnapshot() *Snapshot {
	const p, k = 7, 4

	coefs := make([]float64, p*k)
	for i := range coefs {
		coefs[i] = float64(i%11)*0.25 - 1
	}
	coefs[3] = 0
	coefs[9] = 0
	coefs[17] = 0

	scatters := make([]float64, p)
	lambdas := make([]float64, p)
	flags := make([]uint8, p)
	for i := 0; i < p; i++ {
		scatters[i] = 0.01 * float64(i)
		lambdas[i] = float64(i) * 10
	}
	flags[2] = 1
	flags[5] = 4

	termPixels := make([]*roaring.Bitmap, k)
	for c := 0; c < k; c++ {
		termPixels[c] = roaring.New()
		for i := 0; i < p; i++ {
			if coefs[i*k+c] != 0 {
				termPixels[c].AddInt(i)
			}
		}
	}

	return &Snapshot{
		Pixels:       p,
		Terms:        k,
		Labels:       2,
		Coefficients: coefs,
		Scatters:     scatters,
		Lambdas:      lambdas,
		Flags:        flags,
		Vectorizer:   testConfig(),
		TermPixels:   termPixels,
	}
}

func assertSnapshotsEqual(t *testing.T, want, got *Snapshot) {
	t.Helper()

	assert.Equal(t, want.Pixels, got.Pixels)
	assert.Equal(t, want.Terms, got.Terms)
	assert.Equal(t, want.Labels, got.Labels)
	assert.Equal(t, want.Coefficients, got.Coefficients)
	assert.Equal(t, want.Scatters, got.Scatters)
	assert.Equal(t, want.Lambdas, got.Lambdas)
	assert.Equal(t, want.Flags, got.Flags)
	assert.True(t, want.Vectorizer.Equal(got.Vectorizer))

	require.Len(t, got.TermPixels, len(want.TermPixels))
	for c := range want.TermPixels {
		assert.True(t, want.TermPixels[c].Equals(got.TermPixels[c]), "term %d bitmap", c)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	snap := testSnapshot()

	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, snap))

	got, err := LoadModel(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assertSnapshotsEqual(t, snap, got)
}

func TestSaveLoad_Compressed(t *testing.T) {
	for _, typ := range []CompressionType{CompressionLZ4, CompressionZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			snap := testSnapshot()

			var buf bytes.Buffer
			require.NoError(t, SaveModel(&buf, snap, WithCompression(typ)))

			got, err := LoadModel(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assertSnapshotsEqual(t, snap, got)
		})
	}
}

func TestSaveLoad_WithoutTermBitmaps(t *testing.T) {
	snap := testSnapshot()
	snap.TermPixels = nil

	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, snap))

	got, err := LoadModel(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Nil(t, got.TermPixels)
	assert.Equal(t, snap.Coefficients, got.Coefficients)
}

func TestSaveModel_InvalidSnapshot(t *testing.T) {
	snap := testSnapshot()
	snap.Scatters = snap.Scatters[:3]

	err := SaveModel(&bytes.Buffer{}, snap)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	err = SaveModel(&bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestLoadModel_BadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, testSnapshot()))

	b := buf.Bytes()
	b[0] ^= 0xFF

	_, err := LoadModel(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLoadModel_BadVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, testSnapshot()))

	b := buf.Bytes()
	b[4] = 99 // version field

	_, err := LoadModel(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestLoadModel_CorruptHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, testSnapshot()))

	// Damage the pixel count: header checksum must catch it.
	b := buf.Bytes()
	b[12] ^= 0xFF

	_, err := LoadModel(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	var mismatch *ChecksumMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestLoadModel_CorruptPayload(t *testing.T) {
	snap := testSnapshot()

	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, snap))

	// Flip one coefficient byte. Parsing still succeeds; the trailing
	// checksum must not.
	b := buf.Bytes()
	sr := NewSnapshotReader(bytes.NewReader(b))
	header, err := sr.ReadHeader()
	require.NoError(t, err)
	b[header.DataOffset+5] ^= 0xFF

	_, err = LoadModel(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestLoadModel_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, testSnapshot()))

	_, err := LoadModel(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.Error(t, err)
}

func TestLoadModel_ExpectedVectorizer(t *testing.T) {
	snap := testSnapshot()

	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, snap))

	// Matching expectation passes.
	got, err := LoadModel(bytes.NewReader(buf.Bytes()), WithExpectedVectorizer(testConfig()))
	require.NoError(t, err)
	assert.True(t, got.Vectorizer.Equal(testConfig()))

	// A different basis fails with a typed incompatibility.
	other := testConfig()
	other.Terms = "Teff + logg"
	_, err = LoadModel(bytes.NewReader(buf.Bytes()), WithExpectedVectorizer(other))

	var inc *ErrIncompatible
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, "vectorizer", inc.Field)
}

func TestSaveLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")
	snap := testSnapshot()

	require.NoError(t, SaveModelToFile(path, snap))

	got, err := LoadModelFromFile(path)
	require.NoError(t, err)
	assertSnapshotsEqual(t, snap, got)

	// No temp residue after a clean save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "model.cannon", entries[0].Name())
}

func TestSaveModelToFile_SyncFault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	err := SaveModelToFile(path, testSnapshot(), func(o *Options) {
		o.FileSystem = ffs
	})
	require.Error(t, err)

	// The target must not exist and the temp file must be cleaned up.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSaveModelToFile_WriteFault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 32})

	err := SaveModelToFile(path, testSnapshot(), func(o *Options) {
		o.FileSystem = ffs
	})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenModelMmap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")
	snap := testSnapshot()

	require.NoError(t, SaveModelToFile(path, snap))

	got, closer, err := OpenModelMmap(path)
	require.NoError(t, err)
	defer closer.Close()

	assertSnapshotsEqual(t, snap, got)
}

func TestOpenModelMmap_Compressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")

	require.NoError(t, SaveModelToFile(path, testSnapshot(), WithCompression(CompressionZstd)))

	_, _, err := OpenModelMmap(path)
	assert.ErrorIs(t, err, ErrCompressedSnapshot)
}

func TestOpenModelMmap_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")

	require.NoError(t, SaveModelToFile(path, testSnapshot()))

	// Damage one payload byte in place.
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[len(b)-20] ^= 0xFF
	require.NoError(t, os.WriteFile(path, b, 0o644))

	_, _, err = OpenModelMmap(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestOpenModelMmap_ExpectedVectorizer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.cannon")

	require.NoError(t, SaveModelToFile(path, testSnapshot()))

	other := testConfig()
	other.Type = "spline"
	_, _, err := OpenModelMmap(path, WithExpectedVectorizer(other))

	var inc *ErrIncompatible
	require.ErrorAs(t, err, &inc)
}
