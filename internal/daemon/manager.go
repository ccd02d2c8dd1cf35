// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the long-running subsystems together and owns their
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/striploop/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Worker is a background loop that runs until ctx ends. A non-nil error other
// than context.Canceled stops the whole daemon.
type Worker func(ctx context.Context) error

// ServerConfig configures the API listener.
type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Manager runs the API server and the background workers in one errgroup and
// tears everything down in order when any of them fails or ctx ends.
type Manager struct {
	serverCfg ServerConfig
	handler   http.Handler
	logger    zerolog.Logger

	mu       sync.Mutex
	workers  []namedWorker
	hooks    []namedHook
	started  bool
	stopping bool
	addr     net.Addr
	ready    chan struct{}
}

type namedWorker struct {
	name string
	run  Worker
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager.
func NewManager(serverCfg ServerConfig, handler http.Handler) (*Manager, error) {
	if handler == nil {
		return nil, ErrMissingAPIHandler
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = 10 * time.Second
	}
	if serverCfg.ReadHeaderTimeout <= 0 {
		serverCfg.ReadHeaderTimeout = 10 * time.Second
	}
	return &Manager{
		serverCfg: serverCfg,
		handler:   handler,
		logger:    xglog.WithComponent("manager"),
		ready:     make(chan struct{}),
	}, nil
}

// AddWorker registers a background loop. Must be called before Start.
func (m *Manager) AddWorker(name string, w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, namedWorker{name: name, run: w})
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("Registered shutdown hook")
}

// Ready is closed once the API listener is bound.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Addr returns the bound listen address, or nil before Ready.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Start binds the listener, runs the server and all workers, and blocks until
// ctx ends or one of them fails. Shutdown hooks run before it returns.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	workers := append([]namedWorker(nil), m.workers...)
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.serverCfg.ListenAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen %s: %w", m.serverCfg.ListenAddr, err), m.runHooks(ctx))
	}
	m.mu.Lock()
	m.addr = ln.Addr()
	m.mu.Unlock()
	close(m.ready)

	srv := &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: m.serverCfg.ReadHeaderTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			m.logger.Debug().Str("worker", w.name).Msg("worker started")
			err := w.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error().Err(err).Str("worker", w.name).Str("event", "worker.failed").Msg("worker failed, initiating shutdown")
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		m.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", "api.server.failed").Msg("API server failed")
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Detached but bounded so shutdown completes even though ctx is gone.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("API server shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	if ctx.Err() != nil && runErr == nil {
		m.logger.Info().Msg("Shutdown signal received")
	}
	return errors.Join(runErr, m.runHooks(ctx))
}

// Shutdown runs the shutdown hooks without starting anything. Start calls it on
// its own way out; calling both is safe.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.runHooks(ctx)
}

// runHooks executes shutdown hooks LIFO, once.
func (m *Manager) runHooks(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	m.logger.Debug().Int("hooks", len(hooks)).Msg("Executing shutdown hooks")
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		hookStart := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(hookStart)).
				Msg("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(hookStart)).
			Msg("Shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("Shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("Daemon manager stopped cleanly")
	return nil
}
