// Package storage provides the blob store adapter and the pyramid
// descriptor registry.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// endpoints
	_ "gocloud.dev/blob/memblob"  // mem:// endpoints
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned when a blob or descriptor does not exist.
var ErrNotFound = errors.New("not found")

// BlobStore stores opaque immutable byte blobs keyed by store-assigned
// ids, backed by a gocloud bucket.
type BlobStore struct {
	bucket *blob.Bucket
}

// OpenBlobStore opens the bucket at the given endpoint URL
// (e.g. "file:///var/lib/tilepyramid/blobs" or "mem://").
func OpenBlobStore(ctx context.Context, endpoint string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob bucket %q: %w", endpoint, err)
	}
	return &BlobStore{bucket: bucket}, nil
}

// Close releases the underlying bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

// BlobWriter streams bytes into a new blob. The blob becomes visible
// under ID only after a successful Close; an abandoned writer leaves no
// blob behind.
type BlobWriter struct {
	id string
	w  *blob.Writer
}

// ID returns the id the blob will be readable under once closed.
func (w *BlobWriter) ID() string { return w.id }

func (w *BlobWriter) Write(p []byte) (int, error) { return w.w.Write(p) }

// Close commits the blob.
func (w *BlobWriter) Close() error { return w.w.Close() }

// NewWriter starts streaming a new blob and assigns it an id.
func (s *BlobStore) NewWriter(ctx context.Context) (*BlobWriter, error) {
	id := uuid.NewString()
	w, err := s.bucket.NewWriter(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob writer: %w", err)
	}
	return &BlobWriter{id: id, w: w}, nil
}

// Put stores data as a new blob and returns its id.
func (s *BlobStore) Put(ctx context.Context, data []byte) (string, error) {
	w, err := s.NewWriter(ctx)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return w.ID(), nil
}

// NewReader opens the blob with the given id for streaming reads.
func (s *BlobStore) NewReader(ctx context.Context, id string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, id, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", id, err)
	}
	return r, nil
}

// ReadAll reads the full contents of the blob with the given id.
func (s *BlobStore) ReadAll(ctx context.Context, id string) ([]byte, error) {
	r, err := s.NewReader(ctx, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the blob with the given id. Deleting a missing blob is
// not an error.
func (s *BlobStore) Delete(ctx context.Context, id string) error {
	err := s.bucket.Delete(ctx, id)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}
