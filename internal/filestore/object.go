package filestore

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/pgtree/internal/errs"
)

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Bucket and Key locate the object.
	Bucket string
	Key    string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type (e.g. "application/json").
	ContentType string

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time
}

// Location addresses an object as s3://bucket/key.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseLocation parses an s3://bucket/key URL. Both parts are required.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("invalid upload location %q", raw), err)
	}
	if u.Scheme != "s3" {
		return Location{}, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("upload location %q must use the s3:// scheme", raw))
	}

	loc := Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}
	if loc.Bucket == "" || loc.Key == "" || strings.HasSuffix(loc.Key, "/") {
		return Location{}, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("upload location %q needs a bucket and an object key", raw))
	}
	return loc, nil
}
