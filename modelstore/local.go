package modelstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jsobeck/AnniesLasso/internal/fs"
)

const tmpSuffix = ".tmp"

// Local stores snapshots as files under a root directory.
//
// Put uses the write-temp-sync-rename ritual, so a crash mid-write never
// leaves a torn snapshot visible under its final name.
type Local struct {
	fs   fs.FileSystem
	root string
}

// LocalOptions configure a Local store.
type LocalOptions struct {
	// FileSystem routes all file operations; defaults to the local disk.
	// Swappable for fault-injection tests.
	FileSystem fs.FileSystem
}

// NewLocal creates a local snapshot store rooted at dir.
func NewLocal(dir string, optFns ...func(*LocalOptions)) *Local {
	o := LocalOptions{FileSystem: fs.Default}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return &Local{fs: o.FileSystem, root: dir}
}

// Path returns the file path a snapshot lives at. Implements Pather.
func (s *Local) Path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put writes a snapshot atomically.
func (s *Local) Put(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(name)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + tmpSuffix
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	cleanup := func(err error) error {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		return cleanup(err)
	}
	if err := f.Sync(); err != nil {
		return cleanup(err)
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

// Open opens a snapshot for reading.
func (s *Local) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.OpenFile(s.Path(name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Stat returns snapshot metadata.
func (s *Local) Stat(ctx context.Context, name string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	fi, err := s.fs.Stat(s.Path(name))
	if err != nil {
		return Info{}, err
	}
	return Info{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// List returns snapshot names under the root starting with prefix, sorted.
// In-flight temp files are not listed.
func (s *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	if err := s.list(ctx, "", &names); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	filtered := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			filtered = append(filtered, n)
		}
	}
	sort.Strings(filtered)
	return filtered, nil
}

func (s *Local) list(ctx context.Context, rel string, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := e.Name()
		if rel != "" {
			child = rel + "/" + child
		}
		if e.IsDir() {
			if err := s.list(ctx, child, out); err != nil {
				return err
			}
			continue
		}
		if strings.HasSuffix(child, tmpSuffix) {
			continue
		}
		*out = append(*out, child)
	}
	return nil
}

// Delete removes a snapshot. Missing snapshots are ignored.
func (s *Local) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Local) syncDir(dir string) error {
	f, err := s.fs.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
