// Package supervisor owns the lifecycle of child MCP server processes:
// lazy start, reference counting while a call is in flight, idle
// eviction, and the single entry point used to acquire a ready client.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semantic-router/router/pkg/mcpclient"
	"github.com/semantic-router/router/pkg/types"
)

// Starter spawns a child server and performs its handshake. Satisfied by
// mcpclient.Start; a separate interface here keeps the supervisor testable
// with a fake.
type Starter func(ctx context.Context, cfg *types.ServerConfig) (*mcpclient.Client, error)

// OnTerminated is invoked (outside the supervisor's lock) whenever a
// server transitions to FAILED or is fully stopped, so the indexer or
// router can react without the supervisor holding a back-pointer to them.
type OnTerminated func(serverName string)

// entry is the supervisor's private bookkeeping for one configured server;
// types.RunningServer is the public snapshot derived from it.
type entry struct {
	cfg    *types.ServerConfig
	client *mcpclient.Client
	state  types.RunningState

	startedAt     time.Time
	lastUsedAt    time.Time
	inFlightCount int

	// starting is non-nil while a start is in progress; concurrent
	// Acquire calls for the same server wait on it instead of each
	// spawning their own process (start-future coalescing).
	starting chan struct{}
	startErr error
}

// Supervisor holds the table of configured and running servers behind a
// single mutex; no user code ever runs while the lock is held.
type Supervisor struct {
	start   Starter
	idleTTL time.Duration
	onTerm  OnTerminated

	mu      sync.Mutex
	entries map[string]*entry

	stopCh  chan struct{}
	stopped bool
}

// New builds a Supervisor over the given server configs.
func New(configs map[string]*types.ServerConfig, start Starter, idleTTL time.Duration, onTerm OnTerminated) *Supervisor {
	if idleTTL <= 0 {
		idleTTL = time.Duration(types.DefaultIdleTTLSeconds) * time.Second
	}
	entries := make(map[string]*entry, len(configs))
	for name, cfg := range configs {
		entries[name] = &entry{cfg: cfg}
	}

	s := &Supervisor{
		start:   start,
		idleTTL: idleTTL,
		onTerm:  onTerm,
		entries: entries,
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Configs returns the configured server set, keyed by name.
func (s *Supervisor) Configs() map[string]*types.ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*types.ServerConfig, len(s.entries))
	for name, e := range s.entries {
		out[name] = e.cfg
	}
	return out
}

// Acquire returns a ready client for serverName, lazily starting the
// process if it isn't running, and marks one call in flight. The caller
// must call Release when the call completes.
func (s *Supervisor) Acquire(ctx context.Context, serverName string) (*mcpclient.Client, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[serverName]
		if !ok {
			s.mu.Unlock()
			return nil, types.NewError(types.ErrUnknownServer, fmt.Sprintf("no configured server named %q", serverName))
		}

		switch e.state {
		case types.StateReady:
			e.inFlightCount++
			e.lastUsedAt = time.Now()
			client := e.client
			s.mu.Unlock()
			return client, nil

		case types.StateStarting:
			wait := e.starting
			s.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue

		case types.StateStopping:
			s.mu.Unlock()
			return nil, types.NewError(types.ErrServerUnavailable, fmt.Sprintf("server %q is shutting down", serverName))

		default: // absent or FAILED: start it
			e.state = types.StateStarting
			e.starting = make(chan struct{})
			cfg := e.cfg
			coalesced := e.starting
			s.mu.Unlock()

			client, err := s.start(ctx, cfg)

			s.mu.Lock()
			if err != nil {
				e.state = types.StateFailed
				e.startErr = err
				close(coalesced)
				e.starting = nil
				s.mu.Unlock()
				if s.onTerm != nil {
					s.onTerm(serverName)
				}
				return nil, err
			}

			client.SetCrashCallback(func() { s.MarkFailed(serverName) })

			e.client = client
			e.state = types.StateReady
			e.startedAt = time.Now()
			e.lastUsedAt = e.startedAt
			e.inFlightCount = 1
			close(coalesced)
			e.starting = nil
			s.mu.Unlock()
			return client, nil
		}
	}
}

// Release decrements the in-flight count for serverName after a call
// completes.
func (s *Supervisor) Release(serverName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[serverName]
	if !ok {
		return
	}
	if e.inFlightCount > 0 {
		e.inFlightCount--
	}
	e.lastUsedAt = time.Now()
}

// StartNow eagerly starts serverName, used by the manage_server operation
// (action="start"). Returns nil if already running.
func (s *Supervisor) StartNow(ctx context.Context, serverName string) error {
	client, err := s.Acquire(ctx, serverName)
	if err != nil {
		return err
	}
	s.Release(serverName)
	_ = client
	return nil
}

// Stop stops a running server, used by manage_server (action="shutdown").
func (s *Supervisor) Stop(serverName string) error {
	s.mu.Lock()
	e, ok := s.entries[serverName]
	if !ok {
		s.mu.Unlock()
		return types.NewError(types.ErrUnknownServer, fmt.Sprintf("no configured server named %q", serverName))
	}
	if e.state != types.StateReady {
		s.mu.Unlock()
		return nil
	}
	e.state = types.StateStopping
	client := e.client
	s.mu.Unlock()

	err := client.Shutdown()

	s.mu.Lock()
	e.client = nil
	e.state = ""
	e.inFlightCount = 0
	s.mu.Unlock()

	if s.onTerm != nil {
		s.onTerm(serverName)
	}
	if err != nil {
		return types.WrapError(types.ErrServerCrashed, fmt.Sprintf("stopping server %q", serverName), err)
	}
	return nil
}

// MarkFailed transitions serverName from READY to FAILED, invoked by a
// Client's crash callback when it detects its process died mid-call: the
// next Acquire for this server sees FAILED and starts a fresh process
// instead of handing out the dead one. A no-op if the server already
// moved on (e.g. a concurrent caller already marked it, or it was
// explicitly stopped).
func (s *Supervisor) MarkFailed(serverName string) {
	s.mu.Lock()
	e, ok := s.entries[serverName]
	if !ok || e.state != types.StateReady {
		s.mu.Unlock()
		return
	}
	e.state = types.StateFailed
	e.client = nil
	e.inFlightCount = 0
	s.mu.Unlock()

	if s.onTerm != nil {
		s.onTerm(serverName)
	}
}

// ListRunning returns a snapshot of every server currently in a non-absent
// state.
func (s *Supervisor) ListRunning() []types.RunningServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.RunningServer
	for name, e := range s.entries {
		if e.state == "" {
			continue
		}
		out = append(out, types.RunningServer{
			ServerName:    name,
			State:         e.state,
			StartedAt:     e.startedAt,
			LastUsedAt:    e.lastUsedAt,
			InFlightCount: e.inFlightCount,
		})
	}
	return out
}

// Shutdown stops every running server and halts the idle sweeper.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	names := make([]string, 0, len(s.entries))
	for name, e := range s.entries {
		if e.state == types.StateReady {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := s.Stop(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sweepLoop evicts servers idle beyond idleTTL with zero in-flight calls.
func (s *Supervisor) sweepLoop() {
	ticker := time.NewTicker(s.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) sweep() {
	s.mu.Lock()
	var idle []string
	now := time.Now()
	for name, e := range s.entries {
		if e.state == types.StateReady && e.inFlightCount == 0 && now.Sub(e.lastUsedAt) >= s.idleTTL {
			idle = append(idle, name)
		}
	}
	s.mu.Unlock()

	for _, name := range idle {
		_ = s.Stop(name)
	}
}
