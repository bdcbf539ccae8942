// Package api serves the JSON API and the embedded web page through which a
// client switches its own DNS between the custom servers and the defaults.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
)

// Service is the reconciler surface used by the handlers.
// *reconciler.Reconciler implements it.
type Service interface {
	Describe(ctx context.Context, client string) (*reconciler.ClientState, error)
	ApplyCustomDNS(ctx context.Context, client string, servers ...netip.Addr) (*reconciler.Result, error)
	RemoveCustomDNS(ctx context.Context, client string) (*reconciler.Result, error)
}

// Default HTTP server settings.
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	maxBodyBytes             = 64 << 10
)

// Server serves the API and UI.
type Server struct {
	service        Service
	logger         *slog.Logger
	version        string
	customDNS      string
	trustRealIP    bool
	requestTimeout time.Duration
	mux            *http.ServeMux

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by GET /api.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithCustomDNS sets the server list shown on the page and by GET /api.
func WithCustomDNS(servers string) Option {
	return func(s *Server) {
		s.customDNS = servers
	}
}

// WithTrustRealIP makes the X-Real-IP header, when present, name the client.
// Only enable it behind a proxy that sets the header.
func WithTrustRealIP(trust bool) Option {
	return func(s *Server) {
		s.trustRealIP = trust
	}
}

// WithRequestTimeout bounds the device work done for one request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// New creates a Server backed by service.
func New(service Service, opts ...Option) *Server {
	s := &Server{
		service:        service,
		logger:         slog.Default(),
		version:        "dev",
		requestTimeout: DefaultRequestTimeout,
		mux:            http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api", s.handleInfo)
	s.mux.HandleFunc("GET /api/dns", s.handleGetDNS)
	s.mux.HandleFunc("PUT /api/dns", s.handleApply)
	s.mux.HandleFunc("DELETE /api/dns", s.handleRevert)

	// Older clients switch with POST.
	s.mux.HandleFunc("POST /api/dns/custom", s.handleApply)
	s.mux.HandleFunc("POST /api/dns/default", s.handleRevert)

	s.mux.HandleFunc("GET /{$}", s.handleUI)
	s.mux.HandleFunc("GET /ui", s.handleUI)
	s.mux.HandleFunc("GET /ui/", s.handleUI)
	s.mux.HandleFunc("GET /app.js", s.handleScript)

	s.mux.HandleFunc("/", s.handleNotFound)
}

// Handler returns the routes wrapped in the request ID, access log and body
// limit middleware.
func (s *Server) Handler() http.Handler {
	return requestID(s.accessLog(limitBody(maxBodyBytes, s.mux)))
}

// Start binds addr and serves in a goroutine. Bind errors are returned.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	go func() {
		s.logger.Info("api server starting", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address after Start, or "".
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
