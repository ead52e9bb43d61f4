// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle implements startup and graceful shutdown: opening
// the store, resolving identity, registering the agent, and running
// the heartbeat ticker that keeps last_seen current while the process
// is up.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ai-mail/mailbox/internal/identity"
	"github.com/ai-mail/mailbox/internal/kernel"
	"github.com/ai-mail/mailbox/internal/store"
	"github.com/ai-mail/mailbox/lib/clock"
)

// heartbeatInterval is the default 30-second tick at which the server
// refreshes its own last_seen; Config.HeartbeatInterval overrides it.
const heartbeatInterval = 30 * time.Second

// Config holds the parameters needed to start a Server.
type Config struct {
	// DataDir holds the store file and the machine-id salt file. The
	// directory is created if it does not exist.
	DataDir string

	// Clock provides time for timestamps and the heartbeat ticker.
	// Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle events. Defaults to a discard logger.
	Logger *slog.Logger

	// DetectOptions overrides identity detection for tests. Zero value
	// uses the real environment, process tree, and hostname.
	DetectOptions identity.DetectOptions

	// PoolSize overrides the store's connection pool size.
	PoolSize int

	// HeartbeatInterval overrides the default 30-second heartbeat tick.
	// Zero uses heartbeatInterval.
	HeartbeatInterval time.Duration

	// ActiveWindow overrides list_agents' active_only lookback. Zero
	// defaults to kernel.DefaultActiveWindow.
	ActiveWindow time.Duration
}

// Server is a running mailbox process: an open store, a resolved
// identity, and a heartbeat ticker. Its lifecycle is Start/Shutdown.
type Server struct {
	Store     *store.Store
	Kernel    *kernel.Kernel
	Self      string
	MachineID string

	clock   clock.Clock
	logger  *slog.Logger
	ticker  *clock.Ticker
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// Clock returns the clock this server was started with, so callers
// building a Dispatcher can share it instead of defaulting separately.
func (s *Server) Clock() clock.Clock { return s.clock }

// Start opens the store (creating the schema if missing), resolves
// this process's agent identity with collision resolution, upserts
// the agent row, and starts the heartbeat ticker. The returned Server
// accepts tool calls immediately via Server.Kernel.
func Start(ctx context.Context, cfg Config) (*Server, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("lifecycle: creating data dir: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	machineID, err := identity.MachineID(hostname, filepath.Join(cfg.DataDir, "machine_salt"))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: deriving machine id: %w", err)
	}

	st, err := store.Open(store.Config{
		Path:     filepath.Join(cfg.DataDir, "mailbox.db"),
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: opening store: %w", err)
	}

	self, err := resolveUniqueName(ctx, st, machineID, cfg.DetectOptions)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("lifecycle: resolving identity: %w", err)
	}

	if err := st.UpsertAgent(ctx, &store.Agent{
		Name:      self,
		MachineID: machineID,
		LastSeen:  clk.Now(),
		Status:    "online",
	}); err != nil {
		st.Close()
		return nil, fmt.Errorf("lifecycle: registering agent: %w", err)
	}

	k := kernel.New(kernel.Config{
		Store:        st,
		Clock:        clk,
		NewID:        func() string { return uuid.New().String() },
		Logger:       logger,
		ActiveWindow: cfg.ActiveWindow,
	})

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = heartbeatInterval
	}

	server := &Server{
		Store:     st,
		Kernel:    k,
		Self:      self,
		MachineID: machineID,
		clock:     clk,
		logger:    logger,
		stop:      make(chan struct{}),
	}
	server.startHeartbeat(heartbeat)

	logger.Info("mailbox server started", "self", self, "machine_id", machineID, "data_dir", cfg.DataDir)
	return server, nil
}

// resolveUniqueName runs identity detection and, if the detected base
// name collides with an existing agent on this machine, applies the
// base, base-2, base-3, ... scheme.
func resolveUniqueName(ctx context.Context, st *store.Store, machineID string, opts identity.DetectOptions) (string, error) {
	base := identity.DetectName(opts)

	agents, err := st.ListAgents(ctx, nil)
	if err != nil {
		return "", err
	}
	existing := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a.MachineID == machineID {
			existing[a.Name] = true
		}
	}

	return identity.ResolveUniqueName(base, existing), nil
}

// startHeartbeat launches the background ticker that refreshes
// last_seen at the given interval. It competes fairly with tool calls
// for the store's writer and never blocks them.
func (s *Server) startHeartbeat(interval time.Duration) {
	s.ticker = s.clock.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case <-s.ticker.C:
				if err := s.Store.UpsertAgent(context.Background(), &store.Agent{
					Name:      s.Self,
					MachineID: s.MachineID,
					LastSeen:  s.clock.Now(),
					Status:    "online",
				}); err != nil {
					s.logger.Warn("heartbeat failed", "error", err)
				}
			}
		}
	}()
}

// Shutdown stops the heartbeat ticker, marks the agent offline by
// writing a final last_seen, and closes the store. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.stopped.Do(func() {
		close(s.stop)
		s.ticker.Stop()
		s.wg.Wait()

		if err := s.Store.UpsertAgent(ctx, &store.Agent{
			Name:      s.Self,
			MachineID: s.MachineID,
			LastSeen:  s.clock.Now(),
			Status:    "offline",
		}); err != nil {
			s.logger.Warn("shutdown heartbeat write failed", "error", err)
		}

		if err := s.Store.Close(); err != nil {
			shutdownErr = fmt.Errorf("lifecycle: closing store: %w", err)
			return
		}
		s.logger.Info("mailbox server stopped", "self", s.Self)
	})
	return shutdownErr
}
