package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/filestore"
)

func statusError(code int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
		Err:      errors.New("http error"),
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no key", &smithy.GenericAPIError{Code: "NoSuchKey"}, errs.ErrKindNotFound},
		{"head not found", &smithy.GenericAPIError{Code: "NotFound"}, errs.ErrKindNotFound},
		{"denied", &smithy.GenericAPIError{Code: "AccessDenied"}, errs.ErrKindPermissionDenied},
		{"bad name", &smithy.GenericAPIError{Code: "InvalidBucketName"}, errs.ErrKindInvalidInput},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, errs.ErrKindTimeout},
		{"other code", &smithy.GenericAPIError{Code: "InternalError"}, errs.ErrKindQueryFailed},
		{"status 404", statusError(http.StatusNotFound), errs.ErrKindNotFound},
		{"status 401", statusError(http.StatusUnauthorized), errs.ErrKindPermissionDenied},
		{"status 500", statusError(http.StatusInternalServerError), errs.ErrKindQueryFailed},
		{"wrapped", fmt.Errorf("put: %w", &smithy.GenericAPIError{Code: "NoSuchBucket"}), errs.ErrKindNotFound},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
	assert.Nil(t, mapError(nil, "op"))
}

func TestNew(t *testing.T) {
	_, err := New(filestore.DefaultConfig("", "a", "b"))
	assert.True(t, errs.IsInvalidInput(err))

	cfg := filestore.DefaultConfig("s3.example.com", "a", "b")
	assert.Equal(t, "http://s3.example.com", endpointURL(cfg))
	cfg.UseSSL = true
	assert.Equal(t, "https://s3.example.com", endpointURL(cfg))
	cfg.Endpoint = "http://127.0.0.1:9000"
	assert.Equal(t, "http://127.0.0.1:9000", endpointURL(cfg))
}

// fakeS3 accepts PUT uploads and answers HEAD for stored keys.
type fakeS3 struct {
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		w.Header().Set("Content-Length", "15")
		w.Header().Set("Last-Modified", "Mon, 19 Oct 2026 10:00:00 GMT")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestDriver_PutAndStat(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := filestore.DefaultConfig(strings.TrimPrefix(srv.URL, "http://"), "key", "secret")
	cfg.Provider = filestore.ProviderS3
	d, err := New(cfg)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	loc := filestore.Location{Bucket: "snapshots", Key: "prod/schema.json"}
	body := `{"schemas":[]}` + "\n"

	info, err := d.PutObject(ctx, loc, strings.NewReader(body), int64(len(body)), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.ETag)
	assert.Equal(t, int64(len(body)), info.Size)
	require.Contains(t, fake.objects, "/snapshots/prod/schema.json", "path-style addressing")
	assert.Equal(t, "application/json", fake.types["/snapshots/prod/schema.json"])

	stat, err := d.StatObject(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, int64(15), stat.Size)
	assert.Equal(t, "application/json", stat.ContentType)
	assert.Equal(t, 2026, stat.LastModified.Year())

	_, err = d.StatObject(ctx, filestore.Location{Bucket: "snapshots", Key: "missing.json"})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err), err.Error())
}

func TestDriver_PresignGet(t *testing.T) {
	cfg := filestore.DefaultConfig("localhost:9000", "key", "secret")
	d, err := New(cfg)
	require.NoError(t, err)

	raw, err := d.PresignGet(context.Background(), filestore.Location{Bucket: "snapshots", Key: "prod/schema.json"}, 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/snapshots/prod/schema.json", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-Credential"), DefaultRegion)
}
