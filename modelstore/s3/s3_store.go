package s3

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jsobeck/AnniesLasso/modelstore"
	"github.com/jsobeck/AnniesLasso/resource"
)

// Client is the subset of the S3 API the store uses. *s3.Client satisfies it.
type Client interface {
	manager.UploadAPIClient
	s3.HeadObjectAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store implements modelstore.Store on an S3 bucket.
type Store struct {
	client     Client
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	controller *resource.Controller
}

// StoreOptions configure an S3 snapshot store.
type StoreOptions struct {
	// PartSize is the multipart upload part size in bytes.
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int

	// Controller optionally rate-limits snapshot transfer IO.
	Controller *resource.Controller
}

// NewStore creates a snapshot store over the given bucket. rootPrefix is
// prepended to every snapshot name (e.g. "models/").
func NewStore(client Client, bucket, rootPrefix string, optFns ...func(*StoreOptions)) *Store {
	o := StoreOptions{
		PartSize:    8 * 1024 * 1024,
		Concurrency: 5,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	return &Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = o.PartSize
			u.Concurrency = o.Concurrency
		}),
		bucket:     bucket,
		prefix:     rootPrefix,
		controller: o.Controller,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put streams a snapshot to S3 via multipart upload. S3 exposes the object
// only once the upload completes, so the write is atomic to readers.
func (s *Store) Put(ctx context.Context, name string, r io.Reader) error {
	if s.controller != nil {
		lr := resource.NewLimitedReader(ctx, s.controller, r)
		r = lr
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   r,
	})
	return err
}

// Open opens a snapshot for a single sequential read.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, modelstore.ErrNotFound
		}
		return nil, err
	}
	if s.controller != nil {
		return &limitedReadCloser{
			Reader: resource.NewLimitedReader(ctx, s.controller, resp.Body),
			closer: resp.Body,
		}, nil
	}
	return resp.Body, nil
}

// Stat returns snapshot metadata via HeadObject.
func (s *Store) Stat(ctx context.Context, name string) (modelstore.Info, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return modelstore.Info{}, modelstore.ErrNotFound
		}
		return modelstore.Info{}, err
	}

	info := modelstore.Info{Name: name}
	if head.ContentLength != nil {
		info.Size = *head.ContentLength
	}
	if head.LastModified != nil {
		info.ModTime = *head.LastModified
	}
	return info, nil
}

// List returns all snapshot names under the store prefix starting with
// prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			name = strings.TrimPrefix(name, "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a snapshot. S3 deletes are idempotent; missing objects are
// not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}
