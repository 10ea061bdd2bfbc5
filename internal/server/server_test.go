package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgtree/internal/catalog"
	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/snapshot"
	"github.com/koustreak/pgtree/internal/walk/walktest"
)

func memory() *walktest.Memory {
	return &walktest.Memory{Data: []walktest.Schema{
		{
			Name: "app",
			Relations: []walktest.Relation{
				{Name: "users", Kind: catalog.KindTable, Columns: []catalog.Column{
					{Name: "id", Type: "integer", NotNull: true},
				}, Indexes: []catalog.Index{
					{Name: "users_pkey", Primary: true, Unique: true, Definition: "CREATE UNIQUE INDEX users_pkey ON app.users USING btree (id)"},
				}},
			},
		},
		{Name: "audit"},
	}}
}

// opener hands out mem and counts sessions.
type opener struct {
	mem    *walktest.Memory
	err    error
	opened int
}

func (o *opener) open(context.Context) (snapshot.Catalog, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.opened++
	return o.mem, nil
}

func serve(t *testing.T, o *opener, target string) *httptest.ResponseRecorder {
	t.Helper()
	var logs bytes.Buffer
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &logs})

	srv := New(o.open, log, Options{SpoolDir: t.TempDir()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Contains(t, logs.String(), `"message":"request"`)
	return rec
}

func TestHealthz(t *testing.T) {
	o := &opener{mem: memory()}
	rec := serve(t, o, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Zero(t, o.opened, "liveness does not touch the database")
}

func TestReadyz(t *testing.T) {
	o := &opener{mem: memory()}
	rec := serve(t, o, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, o.mem.Closed)

	o = &opener{err: errs.New(errs.ErrKindConnectionFailed, "connect")}
	rec = serve(t, o, "/readyz")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSnapshot_JSONDefault(t *testing.T) {
	o := &opener{mem: memory()}
	rec := serve(t, o, "/v1/snapshot?schema=app&include=indexes")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, o.mem.Closed)

	var doc struct {
		Schemas []struct {
			Name      string `json:"name"`
			Relations []struct {
				Name    string            `json:"name"`
				Indexes []json.RawMessage `json:"indexes"`
			} `json:"relations"`
		} `json:"schemas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Schemas, 1)
	assert.Equal(t, "app", doc.Schemas[0].Name)
	require.Len(t, doc.Schemas[0].Relations, 1)
	assert.Len(t, doc.Schemas[0].Relations[0].Indexes, 1)
}

func TestSnapshot_Tree(t *testing.T) {
	rec := serve(t, &opener{mem: memory()}, "/v1/snapshot?format=tree&schema=a&match=substring")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "app\n└─ users [table]\n   └─ columns\n      └─ id: integer NOT NULL\n\naudit\n", rec.Body.String())
}

func TestSnapshot_NoMatch(t *testing.T) {
	rec := serve(t, &opener{mem: memory()}, "/v1/snapshot?schema=missing")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{\"schemas\":[]}\n", rec.Body.String())
}

func TestSnapshot_BadRequest(t *testing.T) {
	for _, target := range []string{
		"/v1/snapshot?format=xml",
		"/v1/snapshot?pretty=maybe",
		"/v1/snapshot?match=glob",
		"/v1/snapshot?match=regex&schema=(",
		"/v1/snapshot?include=sequences",
	} {
		t.Run(target, func(t *testing.T) {
			o := &opener{mem: memory()}
			rec := serve(t, o, target)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, o.opened, "rejected before opening a session")

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, errs.ErrKindInvalidInput.String(), body["kind"])
		})
	}
}

func TestSnapshot_CatalogErrorStatus(t *testing.T) {
	tests := []struct {
		kind errs.ErrKind
		want int
	}{
		{errs.ErrKindTimeout, http.StatusGatewayTimeout},
		{errs.ErrKindPermissionDenied, http.StatusForbidden},
		{errs.ErrKindQueryFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			mem := memory()
			mem.Err = errs.New(tt.kind, "catalog query")
			rec := serve(t, &opener{mem: mem}, "/v1/snapshot")

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotContains(t, rec.Body.String(), "schemas", "no partial document")
			assert.True(t, mem.Closed)
		})
	}
}

func TestRateLimit(t *testing.T) {
	o := &opener{mem: memory()}
	srv := New(o.open, logger.Nop(), Options{SpoolDir: t.TempDir(), RateLimit: 0.01, Burst: 1})

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/v1/snapshot").Code)

	rec := get("/v1/snapshot")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, 1, o.opened, "rejected request opened no session")

	assert.Equal(t, http.StatusOK, get("/healthz").Code, "health checks are not limited")
}

func TestCORS(t *testing.T) {
	o := &opener{mem: memory()}
	srv := New(o.open, logger.Nop(), Options{SpoolDir: t.TempDir(), CORSOrigins: []string{"https://docs.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil)
	req.Header.Set("Origin", "https://docs.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://docs.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe(t *testing.T) {
	srv := New((&opener{mem: memory()}).open, logger.Nop(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.ListenAndServe(ctx, "127.0.0.1:0", time.Second), "cancelled context shuts down cleanly")

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	err = srv.ListenAndServe(context.Background(), taken.Addr().String(), time.Second)
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}
