package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage implements Storage for Google Cloud Storage (gs://).
type GCSStorage struct {
	client *gcs.Client
}

// NewGCSStorage creates a client from Application Default Credentials.
// Extra client options (endpoint, credentials file) pass through.
func NewGCSStorage(ctx context.Context, opts ...option.ClientOption) (*GCSStorage, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client}, nil
}

// NewGCSStorageWithClient wraps an existing client.
func NewGCSStorageWithClient(client *gcs.Client) *GCSStorage {
	return &GCSStorage{client: client}
}

func (g *GCSStorage) object(uri string) (*gcs.ObjectHandle, error) {
	bucket, key, err := parseBucketURI(uri, "gs")
	if err != nil {
		return nil, err
	}
	return g.client.Bucket(bucket).Object(key), nil
}

// Get streams an object.
func (g *GCSStorage) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	obj, err := g.object(uri)
	if err != nil {
		return nil, err
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS reader for %s: %w", uri, err)
	}
	return reader, nil
}

// Put uploads data, setting the content type from the sniffed header.
func (g *GCSStorage) Put(ctx context.Context, uri string, data io.Reader) error {
	obj, err := g.object(uri)
	if err != nil {
		return err
	}

	body, mime := sniff(data)
	writer := obj.NewWriter(ctx)
	writer.ContentType = mime
	if _, err := io.Copy(writer, body); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write GCS object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS object: %w", err)
	}
	return nil
}

// Delete removes an object; a missing object is not an error.
func (g *GCSStorage) Delete(ctx context.Context, uri string) error {
	obj, err := g.object(uri)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

// Exists checks object attributes.
func (g *GCSStorage) Exists(ctx context.Context, uri string) (bool, error) {
	obj, err := g.object(uri)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gcs.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check GCS object existence: %w", err)
	}
}

// Close releases the client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
