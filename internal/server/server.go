// Package server exposes snapshots over HTTP for `pgtree serve`.
//
// Every request opens its own catalog session, so each response reflects
// one consistent snapshot of the database at request time.
//
//	GET /healthz                 liveness
//	GET /readyz                  opens and closes a session
//	GET /v1/snapshot?schema=...  renders a snapshot
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/pgtree/internal/emit"
	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/sink"
	"github.com/koustreak/pgtree/internal/snapshot"
	"github.com/koustreak/pgtree/internal/walk"
)

// Options tune a Server. The zero value is usable.
type Options struct {
	// SpoolDir holds rendered snapshots before they are sent. Empty uses
	// the system temp dir.
	SpoolDir string

	// RateLimit caps /v1 requests per second across all clients, with
	// Burst requests allowed at once. 0 disables the limit.
	RateLimit float64
	Burst     int

	// CORSOrigins are the browser origins allowed to call /v1.
	CORSOrigins []string
}

// Server serves snapshots from catalogs handed out by an Opener.
type Server struct {
	open   snapshot.Opener
	log    *logger.Logger
	opts   Options
	router chi.Router
}

// New creates a Server.
func New(open snapshot.Opener, log *logger.Logger, opts Options) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{open: open, log: log, opts: opts}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Route("/v1", func(r chi.Router) {
		if len(opts.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: opts.CORSOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodOptions},
				AllowedHeaders: []string{"Accept"},
				ExposedHeaders: []string{"X-Request-Id"},
				MaxAge:         300,
			}))
		}
		if opts.RateLimit > 0 {
			r.Use(rateLimit(opts.RateLimit, opts.Burst))
		}
		r.Get("/snapshot", s.handleSnapshot)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down,
// giving in-flight snapshots up to grace to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.InfoWith("server listening", map[string]any{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.Wrap(errs.ErrKindConnectionFailed, "serve "+addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(errs.ErrKindTimeout, "shutdown", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	cat, err := s.open(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	_ = cat.Close(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	log := logger.FromContext(r.Context())

	cat, err := s.open(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() { _ = cat.Close(context.WithoutCancel(r.Context())) }()

	spool, err := sink.NewSpool(&response{w: w, contentType: req.Format.ContentType()}, s.opts.SpoolDir)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer spool.Close()

	counts, err := snapshot.Write(r.Context(), cat, req, spool, log)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	log.InfoWith("snapshot served", counts.Fields())
}

// parseRequest reads the snapshot query parameters. The format defaults to
// JSON; everything else defaults like the CLI.
func parseRequest(r *http.Request) (snapshot.Request, error) {
	q := r.URL.Query()
	req := snapshot.Request{Format: emit.FormatJSON}

	if v := q.Get("format"); v != "" {
		f, err := emit.ParseFormat(v)
		if err != nil {
			return req, err
		}
		req.Format = f
	}

	var err error
	if req.Pretty, err = boolParam(q.Get("pretty"), "pretty"); err != nil {
		return req, err
	}

	mode, err := walk.ParseMode(q.Get("match"))
	if err != nil {
		return req, err
	}
	req.Selector = walk.Selector{Value: q.Get("schema"), Mode: mode}
	if req.Selector.IncludeSystem, err = boolParam(q.Get("include_system"), "include_system"); err != nil {
		return req, err
	}
	if err := req.Selector.Validate(); err != nil {
		return req, err
	}

	if req.Filters, err = walk.ParseFilters(q.Get("include")); err != nil {
		return req, err
	}
	return req, nil
}

func boolParam(v, name string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errs.New(errs.ErrKindInvalidInput, "invalid "+name+" value "+strconv.Quote(v))
	}
	return b, nil
}

// fail writes err as a JSON error body with a status matching its kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.ErrorWith("request failed", err, map[string]any{"status": status})
	} else {
		log.DebugWith("request rejected", map[string]any{"status": status, "error": err.Error()})
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  errs.KindOf(err).String(),
	})
}

func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// response is the spool's destination. Headers go out with the first byte,
// which only happens once the snapshot is complete.
type response struct {
	w           http.ResponseWriter
	contentType string
	started     bool
}

func (o *response) Write(p []byte) (int, error) {
	if !o.started {
		o.started = true
		o.w.Header().Set("Content-Type", o.contentType)
		o.w.WriteHeader(http.StatusOK)
	}
	return o.w.Write(p)
}

func (o *response) Commit() error {
	if !o.started {
		// Nothing was rendered; still send the headers.
		_, err := o.Write(nil)
		return err
	}
	return nil
}

func (o *response) Abort() error { return nil }
