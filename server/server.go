package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/server/middleware"
)

// Server is an HTTP server backed by Gin. Extra http.Handlers can be
// mounted on the same port through Handle.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	config     Config
	log        *logger.Logger

	mu       sync.RWMutex
	listener net.Listener
}

// New creates a Server. No middleware is applied until ApplyMiddleware.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNop()
	}

	engine := gin.New()
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(mux, h2s),
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	// Over TLS, HTTP/2 is negotiated through ALPN instead of h2c.
	if err := http2.ConfigureServer(httpServer, h2s); err != nil {
		log.Warn("http2 configuration failed", logger.ErrorFields("http2", err))
	}

	return &Server{
		httpServer: httpServer,
		engine:     engine,
		mux:    mux,
		config: cfg,
		log:    log.WithComponent("server"),
	}
}

// GinEngine returns the Gin engine for route registration.
func (s *Server) GinEngine() *gin.Engine { return s.engine }

// Handler returns the root handler including every middleware.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Handle mounts an http.Handler on the root mux alongside Gin.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
	s.log.Debug("handler mounted", logger.Fields("pattern", pattern))
}

// Start binds the port and serves in the background. It returns once the
// listener is bound. With TLS configured the certificates are loaded first.
func (s *Server) Start(_ context.Context) error {
	tlsCfg, err := s.config.TLS.Build()
	if err != nil {
		return fmt.Errorf("server TLS: %w", err)
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", ln.Addr().String(), "tls", tlsCfg != nil))
	return nil
}

// Stop gracefully shuts down the server within the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", logger.ErrorFields("shutdown", err))
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// TLS reports whether the server serves HTTPS.
func (s *Server) TLS() bool { return s.config.TLS.IsEnabled() }

// Listening reports whether Start bound a listener.
func (s *Server) Listening() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener != nil
}

// ApplyMiddleware installs recovery and request ids on Gin and wraps the
// root handler with CORS, body size limits and request logging.
func (s *Server) ApplyMiddleware() {
	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())

	chain := []middleware.Middleware{
		middleware.RequestLogger(s.log),
		middleware.CORS(&s.config.CORS),
	}
	if s.config.MaxBodySize != "" {
		chain = append(chain, middleware.BodySizeLimit(s.config.MaxBodySize))
	}
	s.httpServer.Handler = middleware.Chain(chain...)(s.httpServer.Handler)
}
