package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leowzhang/fundwatch/internal/subscription"
	"github.com/leowzhang/fundwatch/internal/transport"
)

// fakeTransport records calls and lets tests drive the push streams directly.
type fakeTransport struct {
	mu              sync.Mutex
	connectCalls    int
	disconnectCalls int
	subFunds        [][]string
	unsubFunds      [][]string
	subMarket       [][]string
	subNotifs       int

	status chan transport.Status
	funds  chan transport.Message
	market chan transport.Message
	notifs chan transport.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status: make(chan transport.Status, 16),
		funds:  make(chan transport.Message, 16),
		market: make(chan transport.Message, 16),
		notifs: make(chan transport.Message, 16),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	return nil
}

func (f *fakeTransport) Status() <-chan transport.Status { return f.status }

func (f *fakeTransport) SubscribeFunds(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subFunds = append(f.subFunds, ids)
	return nil
}

func (f *fakeTransport) UnsubscribeFunds(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubFunds = append(f.unsubFunds, ids)
	return nil
}

func (f *fakeTransport) SubscribeMarket(ctx context.Context, indices []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subMarket = append(f.subMarket, indices)
	return nil
}

func (f *fakeTransport) SubscribeNotifications(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subNotifs++
	return nil
}

func (f *fakeTransport) FundUpdates() <-chan transport.Message   { return f.funds }
func (f *fakeTransport) MarketData() <-chan transport.Message    { return f.market }
func (f *fakeTransport) Notifications() <-chan transport.Message { return f.notifs }

func (f *fakeTransport) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) fundSubscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subFunds)
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func testSupervisor(tr transport.Transport, reg *subscription.Registry, cfg SupervisorConfig) *Supervisor {
	if reg == nil {
		reg = subscription.NewRegistry()
	}
	return NewSupervisor(cfg, tr, reg, nil, nil)
}

func fastConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectBaseDelay: 10 * time.Millisecond,
		MaxAttempts:        5,
		WatchdogInterval:   time.Hour, // Keep the watchdog out of timing tests
	}
}

func TestConnectDialsTransport(t *testing.T) {
	tr := newFakeTransport()
	sup := testSupervisor(tr, nil, fastConfig())

	sup.Connect(context.Background())

	if got := sup.State(); got != StateConnecting {
		t.Errorf("State() = %v, want %v", got, StateConnecting)
	}
	waitFor(t, time.Second, func() bool { return tr.connects() == 1 }, "transport dial")
}

func TestConnectIdempotentWhileInFlight(t *testing.T) {
	tr := newFakeTransport()
	sup := testSupervisor(tr, nil, fastConfig())
	ctx := context.Background()

	sup.Connect(ctx)
	sup.Connect(ctx)
	sup.Connect(ctx)

	waitFor(t, time.Second, func() bool { return tr.connects() >= 1 }, "transport dial")
	time.Sleep(20 * time.Millisecond)
	if got := tr.connects(); got != 1 {
		t.Errorf("connect calls = %d, want 1", got)
	}

	sup.HandleStatus(ctx, transport.StatusConnected)
	sup.Connect(ctx)
	if got := tr.connects(); got != 1 {
		t.Errorf("connect calls while connected = %d, want 1", got)
	}
}

func TestConnectedResubscribesRegistry(t *testing.T) {
	tr := newFakeTransport()
	reg := subscription.NewRegistry()
	reg.Add(
		subscription.FundKey("000001"),
		subscription.FundKey("110022"),
		subscription.MarketIndexKey("SH000001"),
		subscription.NotificationsKey(),
	)
	sup := testSupervisor(tr, reg, fastConfig())
	ctx := context.Background()

	sup.Connect(ctx)
	sup.HandleStatus(ctx, transport.StatusConnected)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.subFunds) != 1 {
		t.Fatalf("fund subscribe calls = %d, want 1", len(tr.subFunds))
	}
	if got := tr.subFunds[0]; len(got) != 2 || got[0] != "000001" || got[1] != "110022" {
		t.Errorf("resubscribed funds = %v, want [000001 110022]", got)
	}
	if len(tr.subMarket) != 1 {
		t.Errorf("market subscribe calls = %d, want 1", len(tr.subMarket))
	}
	if tr.subNotifs != 1 {
		t.Errorf("notification subscribe calls = %d, want 1", tr.subNotifs)
	}
}

func TestDropSchedulesLinearRetry(t *testing.T) {
	tr := newFakeTransport()
	sup := testSupervisor(tr, nil, fastConfig())
	ctx := context.Background()

	sup.Connect(ctx)
	sup.HandleStatus(ctx, transport.StatusConnected)
	waitFor(t, time.Second, func() bool { return tr.connects() == 1 }, "initial dial")

	// Drop: a retry timer must be armed and fire a second dial.
	sup.HandleStatus(ctx, transport.StatusDisconnected)
	if !sup.RetryPending() {
		t.Error("RetryPending() = false after drop, want true")
	}
	waitFor(t, time.Second, func() bool { return tr.connects() == 2 }, "retry dial")

	if got := sup.State(); got != StateConnecting {
		t.Errorf("State() after retry = %v, want %v", got, StateConnecting)
	}
}

func TestRetryDelayGrowsPerAttempt(t *testing.T) {
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.ReconnectBaseDelay = 60 * time.Millisecond
	sup := testSupervisor(tr, nil, cfg)
	ctx := context.Background()

	sup.Connect(ctx)

	// Attempt n must wait n*base: no earlier, and well short of what a
	// doubling schedule would wait by the third attempt.
	const slack = 45 * time.Millisecond
	for n := 1; n <= 3; n++ {
		start := time.Now()
		sup.HandleStatus(ctx, transport.StatusDisconnected)
		waitFor(t, 2*time.Second, func() bool { return sup.State() == StateConnecting }, "retry dial")
		elapsed := time.Since(start)

		want := time.Duration(n) * cfg.ReconnectBaseDelay
		if elapsed < want {
			t.Errorf("attempt %d fired after %v, want at least %v", n, elapsed, want)
		}
		if elapsed >= want+slack {
			t.Errorf("attempt %d fired after %v, want under %v", n, elapsed, want+slack)
		}
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.MaxAttempts = 2
	sup := testSupervisor(tr, nil, cfg)
	ctx := context.Background()

	sup.Connect(ctx)

	// Fail every attempt until the budget runs out.
	for i := 0; i < cfg.MaxAttempts; i++ {
		sup.HandleStatus(ctx, transport.StatusDisconnected)
		waitFor(t, time.Second, func() bool { return sup.State() == StateConnecting }, "retry dial")
	}

	// One more failure exceeds the budget: no timer, exhausted flag up.
	sup.HandleStatus(ctx, transport.StatusDisconnected)
	if !sup.Exhausted() {
		t.Error("Exhausted() = false, want true")
	}
	if sup.RetryPending() {
		t.Error("RetryPending() = true after exhaustion, want false")
	}

	dials := tr.connects()
	time.Sleep(20 * time.Millisecond)
	if got := tr.connects(); got != dials {
		t.Errorf("connect calls after exhaustion = %d, want %d", got, dials)
	}

	// Explicit Connect resets the budget and dials again.
	sup.Connect(ctx)
	if sup.Exhausted() {
		t.Error("Exhausted() = true after explicit Connect, want false")
	}
	waitFor(t, time.Second, func() bool { return tr.connects() == dials+1 }, "dial after reset")
}

func TestExplicitDisconnectSchedulesNoRetry(t *testing.T) {
	tr := newFakeTransport()
	sup := testSupervisor(tr, nil, fastConfig())
	ctx := context.Background()

	sup.Connect(ctx)
	waitFor(t, time.Second, func() bool { return tr.connects() == 1 }, "initial dial")
	sup.HandleStatus(ctx, transport.StatusConnected)

	sup.Disconnect()
	if got := sup.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}

	// The transport echoes the teardown; that must not arm a retry.
	sup.HandleStatus(ctx, transport.StatusDisconnected)
	if sup.RetryPending() {
		t.Error("RetryPending() = true after explicit disconnect echo, want false")
	}

	dials := tr.connects()
	time.Sleep(30 * time.Millisecond)
	if got := tr.connects(); got != dials {
		t.Errorf("connect calls = %d, want %d (no automatic redial)", got, dials)
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.ReconnectBaseDelay = 50 * time.Millisecond
	sup := testSupervisor(tr, nil, cfg)
	ctx := context.Background()

	sup.Connect(ctx)
	sup.HandleStatus(ctx, transport.StatusConnected)
	sup.HandleStatus(ctx, transport.StatusDisconnected)
	if !sup.RetryPending() {
		t.Fatal("RetryPending() = false after drop, want true")
	}

	sup.Disconnect()
	if sup.RetryPending() {
		t.Error("RetryPending() = true after Disconnect, want false")
	}
}

func TestConnectedResetsAttemptCounter(t *testing.T) {
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.MaxAttempts = 3
	sup := testSupervisor(tr, nil, cfg)
	ctx := context.Background()

	sup.Connect(ctx)

	// Burn two attempts, then succeed.
	for i := 0; i < 2; i++ {
		sup.HandleStatus(ctx, transport.StatusDisconnected)
		waitFor(t, time.Second, func() bool { return sup.State() == StateConnecting }, "retry dial")
	}
	sup.HandleStatus(ctx, transport.StatusConnected)

	// The full budget must be available again after the next drop chain.
	for i := 0; i < cfg.MaxAttempts; i++ {
		sup.HandleStatus(ctx, transport.StatusDisconnected)
		waitFor(t, time.Second, func() bool { return sup.State() == StateConnecting }, "retry dial")
	}
	if sup.Exhausted() {
		t.Error("Exhausted() = true within a fresh budget, want false")
	}
}

func TestWatchdogForcesConnect(t *testing.T) {
	tr := newFakeTransport()
	cfg := fastConfig()
	cfg.WatchdogInterval = 10 * time.Millisecond
	sup := testSupervisor(tr, nil, cfg)

	sup.Start(context.Background())
	defer sup.Shutdown()

	waitFor(t, time.Second, func() bool { return tr.connects() >= 1 }, "watchdog dial")
}

func TestShutdownIsTerminal(t *testing.T) {
	tr := newFakeTransport()
	sup := testSupervisor(tr, nil, fastConfig())
	ctx := context.Background()

	sup.Start(ctx)
	sup.Shutdown()
	sup.Shutdown() // Idempotent

	if got := sup.State(); got != StateDestroyed {
		t.Errorf("State() = %v, want %v", got, StateDestroyed)
	}

	dials := tr.connects()
	sup.Connect(ctx)
	sup.HandleStatus(ctx, transport.StatusConnected)
	if got := sup.State(); got != StateDestroyed {
		t.Errorf("State() after post-shutdown calls = %v, want %v", got, StateDestroyed)
	}
	if got := tr.connects(); got != dials {
		t.Errorf("connect calls after shutdown = %d, want %d", got, dials)
	}
}
