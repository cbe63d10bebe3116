package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leowzhang/fundwatch/internal/subscription"
	"github.com/leowzhang/fundwatch/internal/transport"
)

// ConnState is the supervisor-owned connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDestroyed
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// SupervisorConfig configures reconnection policy.
type SupervisorConfig struct {
	ReconnectBaseDelay time.Duration // Delay unit; attempt n waits n * base
	MaxAttempts        int           // Automatic attempts before requiring an explicit Connect
	WatchdogInterval   time.Duration // Fixed safety-net interval
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectBaseDelay: 5 * time.Second,
		MaxAttempts:        5,
		WatchdogInterval:   30 * time.Second,
	}
}

// Supervisor owns the connection state machine and drives the transport's
// connect/disconnect calls.
//
// Retry is linear, not exponential: attempt n (1-indexed) waits n times the
// base delay, capped at MaxAttempts, after which only an explicit Connect
// resumes automatic retries. An independent watchdog ticker forces a Connect
// whenever the state is neither Connected nor Destroyed; Connect is an
// idempotent no-op while Connecting or Connected, which makes the redundant
// invocations safe.
type Supervisor struct {
	cfg      SupervisorConfig
	logger   *slog.Logger
	tr       transport.Transport
	registry *subscription.Registry
	notify   func() // Called after every state transition, outside the lock

	mu         sync.Mutex
	state      ConnState
	attempts   int
	exhausted  bool
	retryTimer *time.Timer

	watchdogStop chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewSupervisor creates a supervisor. notify may be nil.
func NewSupervisor(
	cfg SupervisorConfig,
	tr transport.Transport,
	registry *subscription.Registry,
	notify func(),
	logger *slog.Logger,
) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = func() {}
	}

	def := DefaultSupervisorConfig()
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = def.WatchdogInterval
	}

	return &Supervisor{
		cfg:          cfg,
		logger:       logger.With("component", "supervisor"),
		tr:           tr,
		registry:     registry,
		notify:       notify,
		watchdogStop: make(chan struct{}),
	}
}

// Start launches the watchdog.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.watchdogLoop(ctx)
}

// Connect starts a connection attempt. No-op while Connecting, Connected, or
// Destroyed. Resets the retry budget and cancels any pending retry timer.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateConnected, StateDestroyed:
		s.mu.Unlock()
		return
	}

	s.stopRetryTimerLocked()
	s.attempts = 0
	s.exhausted = false
	s.beginConnectLocked(ctx)
	s.mu.Unlock()

	s.notify()
}

// Disconnect moves to Disconnected and cancels any pending retry. The
// desired-subscription registry is left intact; only the server-side
// subscription state is assumed lost.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	s.stopRetryTimerLocked()
	s.state = StateDisconnected
	s.mu.Unlock()

	s.tr.Disconnect()
	s.notify()
}

// HandleStatus applies a transport status transition.
func (s *Supervisor) HandleStatus(ctx context.Context, st transport.Status) {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}

	resubscribe := false

	switch st {
	case transport.StatusConnecting:
		if s.state == StateConnecting {
			s.mu.Unlock()
			return
		}
		s.state = StateConnecting

	case transport.StatusConnected:
		s.state = StateConnected
		s.attempts = 0
		s.exhausted = false
		s.stopRetryTimerLocked()
		resubscribe = true

	case transport.StatusDisconnected:
		// A drop out of Connecting/Connected schedules a retry; a status echo
		// of an explicit Disconnect does not.
		if s.state == StateDisconnected {
			s.mu.Unlock()
			return
		}
		s.state = StateDisconnected
		s.scheduleRetryLocked(ctx)
	}
	s.mu.Unlock()

	if resubscribe {
		s.resubscribe(ctx)
	}
	s.notify()
}

// Shutdown moves to the terminal Destroyed state: stops the watchdog and any
// pending retry timer, then disconnects the transport. Safe to call more
// than once.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	s.state = StateDestroyed
	s.stopRetryTimerLocked()
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.watchdogStop) })
	s.wg.Wait()

	s.tr.Disconnect()
	s.logger.Info("supervisor destroyed")
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Exhausted reports whether the automatic retry budget is spent.
func (s *Supervisor) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// RetryPending reports whether a reconnect timer is armed.
func (s *Supervisor) RetryPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryTimer != nil
}

// beginConnectLocked moves to Connecting and dials off the caller's
// goroutine; the outcome arrives through HandleStatus.
func (s *Supervisor) beginConnectLocked(ctx context.Context) {
	s.state = StateConnecting
	go func() {
		if err := s.tr.Connect(ctx); err != nil {
			s.logger.Warn("transport connect failed", "error", err)
		}
	}()
}

// scheduleRetryLocked arms the next linear-backoff attempt, or marks the
// budget exhausted once MaxAttempts have been scheduled.
func (s *Supervisor) scheduleRetryLocked(ctx context.Context) {
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		s.exhausted = true
		s.logger.Warn("reconnect attempts exhausted, awaiting explicit connect",
			"max_attempts", s.cfg.MaxAttempts,
		)
		return
	}

	delay := time.Duration(s.attempts) * s.cfg.ReconnectBaseDelay
	s.logger.Info("scheduling reconnect",
		"attempt", s.attempts,
		"delay", delay,
	)
	s.retryTimer = time.AfterFunc(delay, func() { s.retry(ctx) })
}

// retry fires from the reconnect timer.
func (s *Supervisor) retry(ctx context.Context) {
	s.mu.Lock()
	s.retryTimer = nil
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.beginConnectLocked(ctx)
	s.mu.Unlock()

	s.notify()
}

// stopRetryTimerLocked cancels the pending retry, if any. Idempotent.
func (s *Supervisor) stopRetryTimerLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// resubscribe re-issues every key currently in the registry. The transport
// forgets all server-side subscriptions on disconnect, so this runs after
// every transition to Connected.
func (s *Supervisor) resubscribe(ctx context.Context) {
	fundIDs := s.registry.FundIDs()
	indices := s.registry.MarketIndices()
	wantNotifs := s.registry.HasNotifications()

	if len(fundIDs) > 0 {
		if err := s.tr.SubscribeFunds(ctx, fundIDs); err != nil {
			s.logger.Warn("failed to resubscribe funds", "error", err)
		}
	}
	if len(indices) > 0 {
		if err := s.tr.SubscribeMarket(ctx, indices); err != nil {
			s.logger.Warn("failed to resubscribe market indices", "error", err)
		}
	}
	if wantNotifs {
		if err := s.tr.SubscribeNotifications(ctx); err != nil {
			s.logger.Warn("failed to resubscribe notifications", "error", err)
		}
	}

	s.logger.Info("re-issued subscriptions",
		"funds", len(fundIDs),
		"indices", len(indices),
		"notifications", wantNotifs,
	)
}

// watchdogLoop forces a connection attempt at a fixed interval, independent
// of the retry schedule, as a safety net against a stuck reconnect chain.
func (s *Supervisor) watchdogLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.watchdogStop:
			return
		case <-ticker.C:
			if st := s.State(); st != StateConnected && st != StateDestroyed {
				s.logger.Info("watchdog forcing connection attempt", "state", st)
				s.Connect(ctx)
			}
		}
	}
}
