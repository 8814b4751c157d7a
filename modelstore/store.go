package modelstore

import (
	"context"
	"io"
	"os"
	"time"
)

// ErrNotFound is returned when a snapshot does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for storing and retrieving immutable model
// snapshots by name.
type Store interface {
	// Put writes a snapshot atomically. An existing snapshot with the same
	// name is replaced; readers never observe a partial write.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open opens a snapshot for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Stat returns metadata about a snapshot.
	Stat(ctx context.Context, name string) (Info, error)

	// List returns the names of all snapshots starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, name string) error
}

// Info describes a stored snapshot.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Pather is an optional interface for stores whose snapshots are plain
// local files, letting callers open them zero-copy (e.g. via mmap).
type Pather interface {
	// Path returns the local filesystem path of a stored snapshot.
	Path(name string) string
}
