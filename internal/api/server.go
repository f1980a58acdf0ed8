package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mapsmith/mapsmith/internal/engine"
	"github.com/mapsmith/mapsmith/internal/ws"
)

// Server is the REST API server.
type Server struct {
	engine    *engine.Engine
	hub       *ws.Hub
	logger    *slog.Logger
	port      int
	server    *http.Server
	staticFS  fs.FS
	devMode   bool
	rateLimit RateLimitConfig
}

// Option configures the API server.
type Option func(*Server)

// WithStaticFS sets the filesystem the dashboard is served from.
func WithStaticFS(fsys fs.FS) Option {
	return func(s *Server) {
		s.staticFS = fsys
	}
}

// WithDevMode enables CORS for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithHub sets the WebSocket hub that receives chain run events.
func WithHub(hub *ws.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithRateLimit enables per-client rate limiting. A zero rate disables it.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(s *Server) {
		s.rateLimit = cfg
	}
}

// New creates a new API server.
func New(eng *engine.Engine, logger *slog.Logger, port int, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		engine: eng,
		logger: logger,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.rateLimit.RequestsPerSecond > 0 {
		handler = rateLimiter(s.rateLimit)(handler)
	}
	if s.devMode {
		handler = s.corsMiddleware(handler)
	}
	return requestLogger(s.logger, handler)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting API server", "port", s.port, "dev_mode", s.devMode)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/dsl/parse", s.handleParseDSL)
	mux.HandleFunc("POST /api/dsl/generate", s.handleGenerateDSL)

	mux.HandleFunc("GET /api/maps/{id}", s.handleGetMap)
	mux.HandleFunc("PUT /api/maps/{id}", s.handleSaveMap)
	mux.HandleFunc("GET /api/maps/{id}/dsl", s.handleGetMapDSL)
	mux.HandleFunc("PUT /api/maps/{id}/dsl", s.handleApplyMapDSL)
	mux.HandleFunc("GET /api/maps/{id}/script", s.handleGenerateScript)

	mux.HandleFunc("GET /api/chains", s.handleListChains)
	mux.HandleFunc("POST /api/chains", s.handleSaveChain)
	mux.HandleFunc("POST /api/chains/check", s.handleCheckChain)
	mux.HandleFunc("GET /api/chains/{id}", s.handleGetChain)
	mux.HandleFunc("PUT /api/chains/{id}", s.handleSaveChain)
	mux.HandleFunc("POST /api/chains/{id}/run", s.handleRunChain)
	mux.HandleFunc("POST /api/chains/{id}/cancel", s.handleCancelChain)

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}

	if s.staticFS != nil {
		mux.Handle("/", s.staticHandler())
	}
}

// staticHandler serves the dashboard. Unknown paths fall back to index.html.
func (s *Server) staticHandler() http.Handler {
	fileServer := http.FileServer(http.FS(s.staticFS))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := s.staticFS.Open(path); err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
