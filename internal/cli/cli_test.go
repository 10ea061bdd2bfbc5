package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgtree/internal/catalog"
	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/filestore"
	"github.com/koustreak/pgtree/internal/filestore/minio"
	"github.com/koustreak/pgtree/internal/filestore/s3"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/snapshot"
	"github.com/koustreak/pgtree/internal/walk/walktest"
)

type harness struct {
	stdout, stderr bytes.Buffer
	vars           map[string]string
	mem            *walktest.Memory
	session        *database.Config // what the opener was called with
	store          *memStore
}

func newHarness() *harness {
	return &harness{
		vars: map[string]string{},
		mem: &walktest.Memory{Data: []walktest.Schema{
			{
				Name: "billing",
				Relations: []walktest.Relation{
					{Name: "invoices", Kind: catalog.KindTable, Columns: []catalog.Column{
						{Name: "id", Type: "bigint", NotNull: true},
					}},
				},
				Functions: []catalog.Function{{Name: "total", Args: "invoice bigint", Returns: "numeric"}},
			},
			{Name: "public"},
		}},
		store: &memStore{},
	}
}

func (h *harness) run(args ...string) int {
	e := &env{
		stdin:  strings.NewReader(""),
		stdout: &h.stdout,
		stderr: &h.stderr,
		lookupEnv: func(k string) (string, bool) {
			v, ok := h.vars[k]
			return v, ok
		},
		open: func(cfg *database.Config, _ *logger.Logger) snapshot.Opener {
			return func(context.Context) (snapshot.Catalog, error) {
				h.session = cfg
				return h.mem, nil
			}
		},
		newStore: func(*filestore.Config) (filestore.Store, error) {
			return h.store, nil
		},
	}
	return run(context.Background(), e, append(args, "--log-format", "json"))
}

type memStore struct {
	filestore.Store
	objects map[string][]byte
	types   map[string]string
}

func (s *memStore) PutObject(_ context.Context, loc filestore.Location, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if s.objects == nil {
		s.objects, s.types = map[string][]byte{}, map[string]string{}
	}
	s.objects[loc.String()] = body
	s.types[loc.String()] = contentType
	return &filestore.ObjectInfo{Bucket: loc.Bucket, Key: loc.Key, Size: size, ETag: "etag"}, nil
}

func (s *memStore) PresignGet(_ context.Context, loc filestore.Location, expiry time.Duration) (string, error) {
	return "https://signed.example/" + loc.Key + "?expires=" + expiry.String(), nil
}

func (s *memStore) Close() error { return nil }

func TestRun_TreeToStdout(t *testing.T) {
	h := newHarness()
	code := h.run("--functions")

	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, `billing
├─ invoices [table]
│  └─ columns
│     └─ id: bigint NOT NULL
└─ functions
   └─ total(invoice bigint) -> numeric

public
└─ functions
   └─ (none)
`, h.stdout.String())
	assert.True(t, h.mem.Closed)
	assert.Contains(t, h.stderr.String(), `"message":"snapshot complete"`)
	assert.Contains(t, h.stderr.String(), `"relations":1`)
}

func TestRun_PositionalSchema(t *testing.T) {
	h := newHarness()
	require.Equal(t, ExitOK, h.run("public", "--schema", "billing"))
	assert.Equal(t, "public\n", h.stdout.String())
}

func TestRun_JSONToFile(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	code := h.run("--format", "json", "--output", path, "-s", "bill", "-m", "substring")
	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Empty(t, h.stdout.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"schemas":[{"name":"billing","relations":[{"name":"invoices","kind":"[table]","columns":[{"name":"id","type":"bigint","not_null":true}]}]}]}`+"\n", string(data))
}

func TestRun_Upload(t *testing.T) {
	h := newHarness()
	h.vars["PGTREE_S3_ENDPOINT"] = "localhost:9000"

	code := h.run("--format", "json", "--upload", "s3://snapshots/prod/schema.json")
	require.Equal(t, ExitOK, code, h.stderr.String())

	uploaded := h.store.objects["s3://snapshots/prod/schema.json"]
	assert.Equal(t, h.stdout.String(), string(uploaded))
	assert.Equal(t, "application/json", h.store.types["s3://snapshots/prod/schema.json"])
	assert.True(t, json.Valid(uploaded))
	assert.Contains(t, h.stderr.String(), `"message":"snapshot uploaded"`)
}

func TestRun_UploadPresigned(t *testing.T) {
	h := newHarness()
	h.vars["PGTREE_S3_ENDPOINT"] = "localhost:9000"

	code := h.run("--upload", "s3://snapshots/schema.txt", "--presign", "30m")
	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Contains(t, h.stderr.String(), `"url":"https://signed.example/schema.txt?expires=30m0s"`)
	assert.Equal(t, "text/plain; charset=utf-8", h.store.types["s3://snapshots/schema.txt"])
}

func TestOpenStore(t *testing.T) {
	cfg := filestore.DefaultConfig("localhost:9000", "key", "secret")
	store, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &minio.Driver{}, store)

	cfg.Provider = filestore.ProviderS3
	store, err = openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &s3.Driver{}, store)

	cfg.Provider = "gcs"
	_, err = openStore(cfg)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRun_UploadWithoutEndpoint(t *testing.T) {
	h := newHarness()
	assert.Equal(t, ExitInvalidInput, h.run("--upload", "s3://snapshots/schema.txt"))
	assert.Nil(t, h.session)
}

func TestRun_Precedence(t *testing.T) {
	h := newHarness()
	h.vars["DATABASE_URL"] = "postgres://fallback/db"
	h.vars["PGTREE_STATEMENT_TIMEOUT"] = "5s"

	require.Equal(t, ExitOK, h.run())
	assert.Equal(t, "postgres://fallback/db", h.session.DSN)
	assert.Equal(t, "5s", h.session.StatementTimeout.String())

	h = newHarness()
	h.vars["PGTREE_DSN"] = "postgres://env/db"
	require.Equal(t, ExitOK, h.run("--dsn", "postgres://flag/db", "--statement-timeout", "250", "--fetch-size", "10"))
	assert.Equal(t, "postgres://flag/db", h.session.DSN)
	assert.Equal(t, "250ms", h.session.StatementTimeout.String())
	assert.Equal(t, 10, h.session.FetchSize)
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgtree.yaml")
	require.NoError(t, os.WriteFile(path, []byte("walk:\n  schema: public\noutput:\n  format: json\n"), 0o644))

	h := newHarness()
	require.Equal(t, ExitOK, h.run("--config", path))
	assert.Equal(t, `{"schemas":[{"name":"public","relations":[]}]}`+"\n", h.stdout.String())

	h = newHarness()
	assert.Equal(t, ExitInvalidInput, h.run("--config", filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestRun_InvalidInput(t *testing.T) {
	for _, args := range [][]string{
		{"--match", "regex", "--schema", "("},
		{"--format", "xml"},
		{"--fetch-size", "0"},
		{"--statement-timeout", "soon"},
		{"--no-such-flag"},
		{"one", "two"},
		{"serve", "--rate-limit", "-1"},
		{"mcp", "extra"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			h := newHarness()
			assert.Equal(t, ExitInvalidInput, h.run(args...))
			assert.Nil(t, h.session, "no session is opened")
			assert.Empty(t, h.stdout.String())
			assert.Contains(t, h.stderr.String(), "Error: ")
		})
	}
}

func TestRun_CatalogFailureLeavesFileUntouched(t *testing.T) {
	h := newHarness()
	h.mem.Err = errs.New(errs.ErrKindPermissionDenied, "list schemas")
	path := filepath.Join(t.TempDir(), "snapshot.json")

	assert.Equal(t, ExitFailure, h.run("--format", "json", "--output", path))
	assert.NoFileExists(t, path)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file removed")
}

func TestVersion(t *testing.T) {
	h := newHarness()
	require.Equal(t, ExitOK, h.run("version"))
	assert.Equal(t, "pgtree dev (commit: none, built: unknown)\n", h.stdout.String())
}
