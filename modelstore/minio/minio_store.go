package minio

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/jsobeck/AnniesLasso/modelstore"
	"github.com/jsobeck/AnniesLasso/resource"
)

// Store implements modelstore.Store on a MinIO (or S3-compatible) bucket.
type Store struct {
	client     *minio.Client
	bucket     string
	prefix     string
	controller *resource.Controller
}

// StoreOptions configure a MinIO snapshot store.
type StoreOptions struct {
	// Controller optionally rate-limits snapshot transfer IO.
	Controller *resource.Controller
}

// NewStore creates a snapshot store over the given bucket. rootPrefix is
// prepended to every snapshot name (e.g. "cannon/").
func NewStore(client *minio.Client, bucket, rootPrefix string, optFns ...func(*StoreOptions)) *Store {
	o := StoreOptions{}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return &Store{
		client:     client,
		bucket:     bucket,
		prefix:     rootPrefix,
		controller: o.Controller,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put streams a snapshot to the bucket. The object appears only once the
// upload completes.
func (s *Store) Put(ctx context.Context, name string, r io.Reader) error {
	if s.controller != nil {
		r = resource.NewLimitedReader(ctx, s.controller, r)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, -1, minio.PutObjectOptions{})
	return err
}

// Open opens a snapshot for a single sequential read. Existence is checked
// up front; the MinIO object handle is otherwise lazy and would only fail
// on the first read.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if _, err := s.Stat(ctx, name); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if s.controller != nil {
		return &limitedReadCloser{
			Reader: resource.NewLimitedReader(ctx, s.controller, obj),
			closer: obj,
		}, nil
	}
	return obj, nil
}

// Stat returns snapshot metadata.
func (s *Store) Stat(ctx context.Context, name string) (modelstore.Info, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return modelstore.Info{}, modelstore.ErrNotFound
		}
		return modelstore.Info{}, err
	}
	return modelstore.Info{Name: name, Size: info.Size, ModTime: info.LastModified}, nil
}

// List returns all snapshot names under the store prefix starting with
// prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a snapshot. Missing snapshots are ignored.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}
