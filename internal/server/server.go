// Package server exposes the mutation engine over HTTP on a unix socket.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pe200012/cpupower-gui-qml/internal/config"
	"github.com/pe200012/cpupower-gui-qml/internal/engine"
	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

const maxBodyBytes = 1 << 20

// Server wraps helper routes and dependencies.
type Server struct {
	engine    *engine.Engine
	idle      *IdleTimer
	cfg       config.Helper
	version   string
	commit    string
	buildDate string
	router    chi.Router
	logger    zerolog.Logger

	// callMu makes the helper a single logical actor: one call at a time.
	callMu   sync.Mutex
	quitOnce sync.Once
	quit     chan struct{}
}

// Option configures server construction.
type Option func(*Server)

// WithIdleTimer sets the idle-shutdown timer started by Start.
func WithIdleTimer(t *IdleTimer) Option {
	return func(s *Server) {
		if t != nil {
			s.idle = t
		}
	}
}

// New constructs a helper server.
func New(eng *engine.Engine, cfg config.Helper, version, commit, buildDate string, opts ...Option) *Server {
	s := &Server{
		engine:    eng,
		idle:      NewIdleTimer(0, nil),
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		logger:    log.With().Str("component", "server").Logger(),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins the idle countdown. Call it once the listener is up.
func (s *Server) Start() {
	s.idle.Start()
}

// IdleDone is closed when the helper has been idle for the configured
// timeout.
func (s *Server) IdleDone() <-chan struct{} {
	return s.idle.Done()
}

// QuitRequested is closed after a quit call.
func (s *Server) QuitRequested() <-chan struct{} {
	return s.quit
}

// Close stops the idle countdown.
func (s *Server) Close() {
	s.idle.Stop()
}

func (s *Server) requestQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Group(func(r chi.Router) {
		r.Get(types.HealthPath, s.handleHealth)
		r.Get(types.VersionPath, s.handleVersion)
		if s.cfg.MetricsEnabled {
			r.Method(http.MethodGet, types.MetricsPath, promhttp.Handler())
		}
	})

	r.Post(types.RPCPath, s.handleRPC)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, types.Health{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, types.Version{
		Service:   types.ServiceName,
		Version:   s.version,
		Commit:    s.commit,
		BuildDate: s.buildDate,
	})
}

// Listen opens the helper socket at path, replacing a stale socket file
// left by a previous run, and applies mode to it.
func Listen(path string, mode os.FileMode) (net.Listener, error) {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&fs.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("setting mode on %s: %w", path, err)
	}
	return ln, nil
}
