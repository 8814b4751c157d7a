// Package manifest tracks the trained models of a family: a MANIFEST file
// listing every catalogued snapshot and a CURRENT pointer naming the one
// inference should use. Both are updated with atomic write-then-rename, so
// readers always see a complete catalog.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jsobeck/AnniesLasso/codec"
	"github.com/jsobeck/AnniesLasso/internal/fs"
	"github.com/jsobeck/AnniesLasso/vectorizer"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// Manifest is the catalog of one model family.
type Manifest struct {
	Version int     `json:"version"`
	ID      uint64  `json:"id"`      // bumped on every save
	Family  string  `json:"family"`  // model lineage name
	NextID  uint64  `json:"next_id"` // next entry id to assign
	Entries []Entry `json:"entries"`
}

// Entry describes one catalogued model snapshot.
type Entry struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Snapshot  string    `json:"snapshot"` // name in the snapshot store
	CreatedAt time.Time `json:"created_at"`

	// Pixels, Terms and Labels echo the snapshot geometry so callers can
	// reject incompatible models without opening them.
	Pixels int `json:"pixels"`
	Terms  int `json:"terms"`
	Labels int `json:"labels"`

	// VectorizerHash fingerprints the basis configuration the model was
	// trained with. Models with different hashes are never interchangeable.
	VectorizerHash string `json:"vectorizer_hash"`
}

// Lookup returns the entry with the given name.
func (m *Manifest) Lookup(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// VectorizerHash fingerprints a vectorizer configuration: the SHA-256 of its
// codec encoding, hex-encoded. Deterministic for equal configs under the
// same codec.
func VectorizerHash(c codec.Codec, cfg vectorizer.Config) (string, error) {
	if c == nil {
		c = codec.Default
	}
	data, err := c.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode vectorizer config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store manages the manifest and CURRENT files of one family directory.
type Store struct {
	fs    fs.FileSystem
	dir   string
	codec codec.Codec
	mu    sync.Mutex
}

// StoreOptions configure a manifest store.
type StoreOptions struct {
	// FileSystem routes all file operations; defaults to the local disk.
	FileSystem fs.FileSystem

	// Codec encodes the manifest payload; defaults to codec.Default.
	Codec codec.Codec
}

// NewStore creates a manifest store over dir.
func NewStore(dir string, optFns ...func(*StoreOptions)) *Store {
	o := StoreOptions{
		FileSystem: fs.Default,
		Codec:      codec.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return &Store{fs: o.FileSystem, dir: dir, codec: o.Codec}
}

// Load reads the current manifest. A directory with no manifest yet loads as
// an empty catalog.
func (s *Store) Load() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Manifest, error) {
	current, err := s.readFile(filepath.Join(s.dir, CurrentFileName))
	if os.IsNotExist(err) {
		return &Manifest{Version: CurrentVersion, NextID: 1}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := s.readFile(filepath.Join(s.dir, string(current)))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}
	return &m, nil
}

// Append catalogs a new model entry, assigns its ID and atomically persists
// the updated manifest. Returns the stored entry.
func (s *Store) Append(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	if _, exists := m.Lookup(e.Name); exists {
		return Entry{}, fmt.Errorf("manifest already contains model %q", e.Name)
	}

	e.ID = m.NextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.NextID++
	m.Entries = append(m.Entries, e)

	if err := s.save(m); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Remove drops an entry from the catalog. Removing an unknown name is not an
// error. The snapshot itself is not deleted.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}

	kept := m.Entries[:0]
	removed := false
	for _, e := range m.Entries {
		if e.Name == name {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil
	}
	m.Entries = kept
	return s.save(m)
}

// SetFamily records the family name on first save.
func (s *Store) SetFamily(family string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if m.Family == family {
		return nil
	}
	m.Family = family
	return s.save(m)
}

// save writes the manifest under a new numbered name and repoints CURRENT,
// both atomically.
func (s *Store) save(m *Manifest) error {
	m.Version = CurrentVersion
	m.ID++

	data, err := s.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	filename := fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID)
	if err := s.writeAtomic(filepath.Join(s.dir, filename), data); err != nil {
		return err
	}
	return s.writeAtomic(filepath.Join(s.dir, CurrentFileName), []byte(filename))
}

func (s *Store) readFile(path string) ([]byte, error) {
	f, err := s.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return s.syncDir(filepath.Dir(path))
}

func (s *Store) syncDir(dir string) error {
	f, err := s.fs.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
