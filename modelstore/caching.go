package modelstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jsobeck/AnniesLasso/persistence"
)

// Caching wraps a remote Store with a local directory cache. Each snapshot
// is downloaded whole at most once, verified against its embedded checksums,
// and served from disk afterwards. Concurrent opens of the same snapshot
// share a single download.
type Caching struct {
	remote Store
	local  *Local

	verify        bool
	prefetchLimit int

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// CachingOptions configure a Caching store.
type CachingOptions struct {
	// Verify runs the snapshot integrity check after each download,
	// catching transport corruption before a model load sees it.
	Verify bool

	// PrefetchLimit bounds the concurrent downloads Warm issues.
	PrefetchLimit int
}

// NewCaching wraps remote with a cache under cacheDir.
func NewCaching(remote Store, cacheDir string, optFns ...func(*CachingOptions)) *Caching {
	o := CachingOptions{Verify: true, PrefetchLimit: 4}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return &Caching{
		remote:        remote,
		local:         NewLocal(cacheDir),
		verify:        o.Verify,
		prefetchLimit: o.PrefetchLimit,
		inflight:      make(map[string]chan struct{}),
	}
}

// Open returns a reader over the locally cached copy, downloading it first
// if needed.
func (c *Caching) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := c.ensure(ctx, name); err != nil {
		return nil, err
	}
	return c.local.Open(ctx, name)
}

// Path downloads the snapshot if needed and returns its local file path,
// suitable for zero-copy opens. Implements a context-aware variant of Pather;
// use this over Path on the inner Local so the download is guaranteed.
func (c *Caching) Fetch(ctx context.Context, name string) (string, error) {
	if err := c.ensure(ctx, name); err != nil {
		return "", err
	}
	return c.local.Path(name), nil
}

// Warm pre-downloads the named snapshots, at most PrefetchLimit at a time.
func (c *Caching) Warm(ctx context.Context, names ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.prefetchLimit)
	for _, name := range names {
		g.Go(func() error {
			return c.ensure(ctx, name)
		})
	}
	return g.Wait()
}

// Put writes through to the remote store and drops any stale cached copy.
func (c *Caching) Put(ctx context.Context, name string, r io.Reader) error {
	if err := c.remote.Put(ctx, name, r); err != nil {
		return err
	}
	return c.local.Delete(ctx, name)
}

// Stat reports remote metadata.
func (c *Caching) Stat(ctx context.Context, name string) (Info, error) {
	return c.remote.Stat(ctx, name)
}

// List reports the remote listing.
func (c *Caching) List(ctx context.Context, prefix string) ([]string, error) {
	return c.remote.List(ctx, prefix)
}

// Delete removes the snapshot remotely and from the cache.
func (c *Caching) Delete(ctx context.Context, name string) error {
	if err := c.remote.Delete(ctx, name); err != nil {
		return err
	}
	return c.local.Delete(ctx, name)
}

// Evict drops the cached copy without touching the remote snapshot.
func (c *Caching) Evict(ctx context.Context, name string) error {
	return c.local.Delete(ctx, name)
}

// ensure makes the snapshot present in the cache, downloading it once even
// under concurrent callers.
func (c *Caching) ensure(ctx context.Context, name string) error {
	for {
		if _, err := c.local.Stat(ctx, name); err == nil {
			return nil
		}

		c.mu.Lock()
		if done, ok := c.inflight[name]; ok {
			c.mu.Unlock()
			select {
			case <-done:
				// The winner finished (or failed); re-check the cache.
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done := make(chan struct{})
		c.inflight[name] = done
		c.mu.Unlock()

		err := c.download(ctx, name)

		c.mu.Lock()
		delete(c.inflight, name)
		c.mu.Unlock()
		close(done)
		return err
	}
}

func (c *Caching) download(ctx context.Context, name string) error {
	r, err := c.remote.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := c.local.Put(ctx, name, r); err != nil {
		return err
	}

	if c.verify {
		if err := persistence.VerifySnapshotFile(nil, c.local.Path(name)); err != nil {
			c.local.Delete(ctx, name)
			return fmt.Errorf("verify downloaded snapshot %s: %w", name, err)
		}
	}
	return nil
}
