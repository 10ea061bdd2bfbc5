// Package filestore defines the interface for the object storage backends a
// finished snapshot can be uploaded to.
//
// Callers depend only on this package, never on a specific provider package.
// Two providers exist: minio (minio-go) and s3 (the AWS SDK).
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	loc, err := filestore.ParseLocation("s3://snapshots/prod/schema.json")
//	info, err := store.PutObject(ctx, loc, r, size, "application/json")
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the interface all object storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// PutObject uploads size bytes from r to loc. A size of -1 streams an
	// unknown length.
	PutObject(ctx context.Context, loc Location, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// StatObject returns metadata for the object at loc without
	// downloading its content.
	StatObject(ctx context.Context, loc Location) (*ObjectInfo, error)

	// PresignGet returns a URL that downloads the object at loc without
	// credentials until expiry has passed.
	PresignGet(ctx context.Context, loc Location, expiry time.Duration) (string, error)
}
