// Package minio provides a MinIO implementation of filestore.Store. It works
// against any S3-compatible endpoint.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/filestore"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
}

var _ filestore.Store = (*Driver)(nil)

// New connects to MinIO using the provided Config and returns a Driver.
// Unlike Ping, it does not contact the server.
func New(cfg *filestore.Config) (*Driver, error) {
	if cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "object store endpoint is not configured")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	return &Driver{client: client}, nil
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.client.ListBuckets(ctx)
	if err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op for MinIO: the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// PutObject uploads r to loc.
func (d *Driver) PutObject(ctx context.Context, loc filestore.Location, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	info, err := d.client.PutObject(ctx, loc.Bucket, loc.Key, r, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, mapError(err, "failed to upload "+loc.String())
	}

	return &filestore.ObjectInfo{
		Bucket:       info.Bucket,
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// StatObject returns metadata for the object at loc without downloading
// its content.
func (d *Driver) StatObject(ctx context.Context, loc filestore.Location) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, loc.Bucket, loc.Key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat "+loc.String())
	}

	return &filestore.ObjectInfo{
		Bucket:       loc.Bucket,
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// PresignGet returns a presigned GET URL for loc. The URL is signed locally;
// set Region to avoid a bucket location lookup.
func (d *Driver) PresignGet(ctx context.Context, loc filestore.Location, expiry time.Duration) (string, error) {
	u, err := d.client.PresignedGetObject(ctx, loc.Bucket, loc.Key, expiry, url.Values{})
	if err != nil {
		return "", mapError(err, "failed to presign "+loc.String())
	}
	return u.String(), nil
}
