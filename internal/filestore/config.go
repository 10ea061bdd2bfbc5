package filestore

import (
	"fmt"
	"strings"

	"github.com/koustreak/pgtree/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
	ProviderS3    Provider = "s3"
)

// ParseProvider validates a provider name. Empty means ProviderMinIO.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(s)) {
	case "", ProviderMinIO:
		return ProviderMinIO, nil
	case ProviderS3:
		return ProviderS3, nil
	}
	return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown storage provider %q (want minio or s3)", s))
}

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend: ProviderMinIO or ProviderS3.
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO, "s3.amazonaws.com" for AWS.
	Endpoint string `yaml:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO. The s3 provider falls back to us-east-1.
	Region string `yaml:"region"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}
