package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/portfolio-admin/internal/files"
)

// BucketStore implements files.Store on a Cloud Storage bucket. Objects are
// served from the public storage.googleapis.com origin.
type BucketStore struct {
	bucket *storage.BucketHandle
	origin string
}

var _ files.Store = (*BucketStore)(nil)

// BucketOrigin returns the public URL prefix of objects in bucket.
func BucketOrigin(bucket string) string {
	return "https://storage.googleapis.com/" + bucket + "/"
}

// NewBucketStore returns a file store writing to bucket.
func NewBucketStore(client *storage.Client, bucket string) *BucketStore {
	return &BucketStore{bucket: client.Bucket(bucket), origin: BucketOrigin(bucket)}
}

// Upload implements files.Store. An existing object at objectPath is replaced.
func (b *BucketStore) Upload(ctx context.Context, objectPath string, f files.File) (string, error) {
	w := b.bucket.Object(objectPath).NewWriter(ctx)
	w.ContentType = f.ContentType

	if _, err := io.Copy(w, bytes.NewReader(f.Data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// PublicURL implements files.Store.
func (b *BucketStore) PublicURL(ctx context.Context, ref string) (string, error) {
	if _, err := b.bucket.Object(ref).Attrs(ctx); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%s: %w", ref, files.ErrNotFound)
		}
		return "", fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	return b.origin + files.EscapePath(ref), nil
}

// Delete implements files.Store.
func (b *BucketStore) Delete(ctx context.Context, urlOrRef string) error {
	ref := files.RefFromURL(b.origin, urlOrRef)
	if err := b.bucket.Object(ref).Delete(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", ref, files.ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

// Origin implements files.Store.
func (b *BucketStore) Origin() string { return b.origin }

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
