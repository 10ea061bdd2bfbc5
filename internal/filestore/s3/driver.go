// Package s3 provides an AWS SDK implementation of filestore.Store for
// Amazon S3 and S3-compatible services that need path-style addressing.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("s3.eu-central-1.amazonaws.com", keyID, secret)
//	cfg.Provider = filestore.ProviderS3
//	cfg.UseSSL = true
//	store, err := s3.New(cfg)
//	if err != nil { ... }
//	defer store.Close()
package s3

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3sdk "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/filestore"
)

// DefaultRegion is used when the config leaves Region empty.
const DefaultRegion = "us-east-1"

// Driver is an S3 implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client  *s3sdk.Client
	presign *s3sdk.PresignClient
}

var _ filestore.Store = (*Driver)(nil)

// New builds an S3 client from cfg. It does not contact the server.
func New(cfg *filestore.Config) (*Driver, error) {
	if cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "object store endpoint is not configured")
	}

	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	client := s3sdk.New(s3sdk.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		BaseEndpoint: aws.String(endpointURL(cfg)),
		UsePathStyle: true,
	})

	return &Driver{client: client, presign: s3sdk.NewPresignClient(client)}, nil
}

func endpointURL(cfg *filestore.Config) string {
	if strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	if cfg.UseSSL {
		return "https://" + cfg.Endpoint
	}
	return "http://" + cfg.Endpoint
}

// --- filestore.Store implementation ---

// Ping verifies the endpoint is reachable and the credentials are accepted.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx, &s3sdk.ListBucketsInput{}); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op: the SDK client holds no resources that need releasing.
func (d *Driver) Close() error {
	return nil
}

// PutObject uploads r to loc. r should be seekable when size is unknown,
// the SDK has to hash the payload.
func (d *Driver) PutObject(ctx context.Context, loc filestore.Location, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	in := &s3sdk.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	out, err := d.client.PutObject(ctx, in)
	if err != nil {
		return nil, mapError(err, "failed to upload "+loc.String())
	}

	return &filestore.ObjectInfo{
		Bucket:       loc.Bucket,
		Key:          loc.Key,
		Size:         size,
		ContentType:  contentType,
		ETag:         etag(out.ETag),
		LastModified: time.Now().UTC(),
	}, nil
}

// StatObject returns metadata for the object at loc without downloading
// its content.
func (d *Driver) StatObject(ctx context.Context, loc filestore.Location) (*filestore.ObjectInfo, error) {
	out, err := d.client.HeadObject(ctx, &s3sdk.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, mapError(err, "failed to stat "+loc.String())
	}

	info := &filestore.ObjectInfo{
		Bucket:      loc.Bucket,
		Key:         loc.Key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        etag(out.ETag),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// PresignGet returns a presigned GET URL for loc. Signing happens locally.
func (d *Driver) PresignGet(ctx context.Context, loc filestore.Location, expiry time.Duration) (string, error) {
	req, err := d.presign.PresignGetObject(ctx, &s3sdk.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, s3sdk.WithPresignExpires(expiry))
	if err != nil {
		return "", mapError(err, "failed to presign "+loc.String())
	}
	return req.URL, nil
}

func etag(s *string) string {
	return strings.Trim(aws.ToString(s), `"`)
}
