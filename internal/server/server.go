// Package server exposes a lattice schema over HTTP. Every request runs in
// its own transaction with the caller's session bound, so rows are filtered
// by the compiled row level security policies rather than by the handlers.
package server

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/pkg/schema"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string

	// MaxRows caps the rows returned by one list request.
	MaxRows int
}

// DefaultMaxRows is used when Config.MaxRows is zero.
const DefaultMaxRows = 1000

// Server serves the record API for one schema.
type Server struct {
	cfg      Config
	checker  *lattice.Checker
	db       *sql.DB
	tables   map[string]schema.Table
	secret   []byte
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to a logger that discards
// output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New builds a Server. checker must have been built from tables.
func New(cfg Config, checker *lattice.Checker, db *sql.DB, tables []schema.Table, opts ...Option) *Server {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}

	s := &Server{
		cfg:      cfg,
		checker:  checker,
		db:       db,
		tables:   make(map[string]schema.Table, len(tables)),
		secret:   []byte(cfg.JWTSecret),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: prometheus.NewRegistry(),
	}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.registry)
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.metrics.middleware(), s.logRequests())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(s.sessionMiddleware())
	{
		api.GET("/tables/:table/records", s.listRecords)
		api.POST("/tables/:table/records", s.createRecord)
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "no database"})
		return
	}
	if err := s.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
