package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leowzhang/fundwatch/internal/alert"
	"github.com/leowzhang/fundwatch/internal/model"
	"github.com/leowzhang/fundwatch/internal/subscription"
	"github.com/leowzhang/fundwatch/internal/transport"
)

// FundCatalog resolves fund metadata. Implementations paginate server-side;
// consumers see the flattened result.
type FundCatalog interface {
	AllFunds(ctx context.Context) ([]model.Fund, error)
}

// SessionConfig configures a realtime session.
type SessionConfig struct {
	Supervisor   SupervisorConfig
	Thresholds   alert.Thresholds
	FeedCapacity int // Notification feed bound; 0 = default 50
	StreamBuffer int // Per-subscriber channel buffer; 0 = 64
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Supervisor:   DefaultSupervisorConfig(),
		Thresholds:   alert.DefaultThresholds(),
		FeedCapacity: alert.DefaultFeedCapacity,
		StreamBuffer: 64,
	}
}

// Session is the composition root of the realtime layer. It owns the
// desired-subscription registry, the connection supervisor, the update
// router, and the notification feed, and exposes the public contract
// consumed by the UI layer.
//
// Lifecycle: NewSession, Start, then Connect. Shutdown is terminal and
// idempotent; after it every call is a silent no-op and no event can mutate
// status or notifications.
type Session struct {
	cfg     SessionConfig
	logger  *slog.Logger
	tr      transport.Transport
	catalog FundCatalog // May be nil

	registry *subscription.Registry
	feed     *alert.Feed
	sup      *Supervisor
	router   *Router

	// One long-lived cancellation handle shared by every internal
	// subscription, released exactly once at shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	started      bool
	closed       bool
	messageCount int64
	lastUpdate   time.Time

	nextSubID  int
	statusSubs map[int]chan model.Status
	notifSubs  map[int]chan model.Notification
	fundSubs   map[int]chan model.FundUpdate
	marketSubs map[int]chan model.MarketIndexUpdate
	dropped    int64
}

// NewSession creates a session around the injected transport and catalog.
// catalog may be nil when metadata resolution is not needed.
func NewSession(cfg SessionConfig, tr transport.Transport, catalog FundCatalog, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultSessionConfig().StreamBuffer
	}

	s := &Session{
		cfg:        cfg,
		logger:     logger.With("component", "session"),
		tr:         tr,
		catalog:    catalog,
		registry:   subscription.NewRegistry(),
		feed:       alert.NewFeed(cfg.FeedCapacity),
		statusSubs: make(map[int]chan model.Status),
		notifSubs:  make(map[int]chan model.Notification),
		fundSubs:   make(map[int]chan model.FundUpdate),
		marketSubs: make(map[int]chan model.MarketIndexUpdate),
	}

	s.sup = NewSupervisor(cfg.Supervisor, tr, s.registry, s.publishStatus, logger)

	synth := alert.NewSynthesizer(cfg.Thresholds)
	s.router = NewRouter(tr, synth, s.feed, s, func(st transport.Status) {
		s.sup.HandleStatus(s.ctx, st)
	}, logger)

	return s
}

// Start launches the supervisor watchdog and the update router. It does not
// connect; call Connect for that.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.sup.Start(s.ctx)
	if err := s.router.Start(s.ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	s.logger.Info("realtime session started")
	return nil
}

// Connect asks the supervisor to establish the push channel. Safe to call
// redundantly; progress surfaces on the status stream.
func (s *Session) Connect() {
	if !s.running() {
		return
	}
	s.sup.Connect(s.ctx)
}

// Disconnect tears the push channel down without touching the registry.
func (s *Session) Disconnect() {
	if !s.running() {
		return
	}
	s.sup.Disconnect()
}

// SubscribeFunds adds fund NAV subscriptions.
func (s *Session) SubscribeFunds(ids []string) {
	keys := make([]subscription.Key, len(ids))
	for i, id := range ids {
		keys[i] = subscription.FundKey(id)
	}
	if !s.applySubscriptionChange(s.registry.Add, keys) {
		return
	}
	s.issue(func(ctx context.Context) error { return s.tr.SubscribeFunds(ctx, ids) }, "subscribe funds")
}

// UnsubscribeFunds removes fund NAV subscriptions.
func (s *Session) UnsubscribeFunds(ids []string) {
	keys := make([]subscription.Key, len(ids))
	for i, id := range ids {
		keys[i] = subscription.FundKey(id)
	}
	if !s.applySubscriptionChange(s.registry.Remove, keys) {
		return
	}
	s.issue(func(ctx context.Context) error { return s.tr.UnsubscribeFunds(ctx, ids) }, "unsubscribe funds")
}

// SubscribeMarket adds market index subscriptions.
func (s *Session) SubscribeMarket(indices []string) {
	keys := make([]subscription.Key, len(indices))
	for i, code := range indices {
		keys[i] = subscription.MarketIndexKey(code)
	}
	if !s.applySubscriptionChange(s.registry.Add, keys) {
		return
	}
	s.issue(func(ctx context.Context) error { return s.tr.SubscribeMarket(ctx, indices) }, "subscribe market")
}

// SubscribeNotifications adds the server notification channel subscription.
func (s *Session) SubscribeNotifications() {
	if !s.applySubscriptionChange(s.registry.Add, []subscription.Key{subscription.NotificationsKey()}) {
		return
	}
	s.issue(func(ctx context.Context) error { return s.tr.SubscribeNotifications(ctx) }, "subscribe notifications")
}

// Status returns the current aggregate status snapshot.
func (s *Session) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// StatusStream registers a status subscriber. The returned cancel function
// unregisters it; snapshots that cannot be delivered to a full subscriber
// are dropped.
func (s *Session) StatusStream() (<-chan model.Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.Status, s.cfg.StreamBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.addSubLocked()
	s.statusSubs[id] = ch
	return ch, func() { s.dropSub(id) }
}

// NotificationStream registers a notification subscriber.
func (s *Session) NotificationStream() (<-chan model.Notification, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.Notification, s.cfg.StreamBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.addSubLocked()
	s.notifSubs[id] = ch
	return ch, func() { s.dropSub(id) }
}

// FundUpdateStream registers a fund tick subscriber.
func (s *Session) FundUpdateStream() (<-chan model.FundUpdate, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.FundUpdate, s.cfg.StreamBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.addSubLocked()
	s.fundSubs[id] = ch
	return ch, func() { s.dropSub(id) }
}

// MarketDataStream registers a market tick subscriber.
func (s *Session) MarketDataStream() (<-chan model.MarketIndexUpdate, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.MarketIndexUpdate, s.cfg.StreamBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.addSubLocked()
	s.marketSubs[id] = ch
	return ch, func() { s.dropSub(id) }
}

// Notifications returns a snapshot of the feed, newest first.
func (s *Session) Notifications() []model.Notification {
	return s.feed.Snapshot()
}

// UnreadCount returns the number of unread notifications.
func (s *Session) UnreadCount() int {
	return s.feed.UnreadCount()
}

// MarkRead marks one notification read.
func (s *Session) MarkRead(id string) {
	if s.isClosed() {
		return
	}
	s.feed.MarkRead(id)
}

// MarkAllRead marks every notification read.
func (s *Session) MarkAllRead() {
	if s.isClosed() {
		return
	}
	s.feed.MarkAllRead()
}

// ClearNotifications empties the feed.
func (s *Session) ClearNotifications() {
	if s.isClosed() {
		return
	}
	s.feed.Clear()
}

// WatchedFunds resolves catalog metadata for the currently-watched fund IDs.
func (s *Session) WatchedFunds(ctx context.Context) ([]model.Fund, error) {
	if s.isClosed() || s.catalog == nil {
		return nil, nil
	}

	ids := s.registry.FundIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	all, err := s.catalog.AllFunds(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve watched funds: %w", err)
	}

	watched := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		watched[id] = struct{}{}
	}

	var out []model.Fund
	for _, f := range all {
		if _, ok := watched[f.Code]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// RouterStats returns the update router's counters.
func (s *Session) RouterStats() RouterStats {
	return s.router.Stats()
}

// Shutdown is the only path to the terminal state: it cancels the watchdog
// and any pending reconnect, disconnects the transport, closes all
// subscriber streams, and freezes status and notifications. Callable more
// than once.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	s.sup.Shutdown()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	s.router.Stop(stopCtx)

	s.mu.Lock()
	for id, ch := range s.statusSubs {
		close(ch)
		delete(s.statusSubs, id)
	}
	for id, ch := range s.notifSubs {
		close(ch)
		delete(s.notifSubs, id)
	}
	for id, ch := range s.fundSubs {
		close(ch)
		delete(s.fundSubs, id)
	}
	for id, ch := range s.marketSubs {
		close(ch)
		delete(s.marketSubs, id)
	}
	s.mu.Unlock()

	s.logger.Info("realtime session shut down")
}

// -----------------------------------------------------------------------------
// Sink implementation (called by the router, single consumer)
// -----------------------------------------------------------------------------

// PublishFundUpdate accounts one inbound event and fans the tick out.
func (s *Session) PublishFundUpdate(u model.FundUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.recordInboundLocked()
	for _, ch := range s.fundSubs {
		select {
		case ch <- u:
		default:
			s.dropped++
		}
	}
	s.broadcastStatusLocked()
}

// PublishMarketUpdate accounts one inbound event and fans the tick out.
func (s *Session) PublishMarketUpdate(u model.MarketIndexUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.recordInboundLocked()
	for _, ch := range s.marketSubs {
		select {
		case ch <- u:
		default:
			s.dropped++
		}
	}
	s.broadcastStatusLocked()
}

// PublishSystemNotification accounts one inbound event and fans the
// pass-through notification out.
func (s *Session) PublishSystemNotification(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.recordInboundLocked()
	s.fanOutNotificationLocked(n)
	s.broadcastStatusLocked()
}

// PublishAlert fans out a synthesized notification. The tick it derives from
// was already counted.
func (s *Session) PublishAlert(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fanOutNotificationLocked(n)
}

// publishStatus recomputes and broadcasts the aggregate snapshot. Invoked by
// the supervisor after every state transition.
func (s *Session) publishStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.broadcastStatusLocked()
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (s *Session) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// applySubscriptionChange mutates the registry and accounts the change.
// Returns false when nothing changed (idempotent repeat) or the session is
// terminal.
func (s *Session) applySubscriptionChange(op func(...subscription.Key) int, keys []subscription.Key) bool {
	if len(keys) == 0 {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	changed := op(keys...)
	if changed > 0 {
		// One counted change per effective mutating operation.
		s.messageCount++
	}
	s.broadcastStatusLocked()
	s.mu.Unlock()

	return changed > 0
}

// issue forwards a subscription change to the transport when connected. A
// rejected call degrades to a log line; the registry already holds the
// desired state and the next reconnect re-issues it.
func (s *Session) issue(call func(context.Context) error, what string) {
	if !s.running() || s.sup.State() != StateConnected {
		return
	}
	if err := call(s.ctx); err != nil {
		s.logger.Warn("transport call failed", "op", what, "error", err)
	}
}

func (s *Session) recordInboundLocked() {
	s.messageCount++
	s.lastUpdate = time.Now()
}

func (s *Session) statusLocked() model.Status {
	return model.Status{
		Connected:           s.sup.State() == StateConnected,
		LastUpdate:          s.lastUpdate,
		ActiveSubscriptions: s.registry.Strings(),
		MessageCount:        s.messageCount,
		RetriesExhausted:    s.sup.Exhausted(),
	}
}

func (s *Session) broadcastStatusLocked() {
	st := s.statusLocked()
	for _, ch := range s.statusSubs {
		select {
		case ch <- st:
		default:
			s.dropped++
		}
	}
}

func (s *Session) fanOutNotificationLocked(n model.Notification) {
	for _, ch := range s.notifSubs {
		select {
		case ch <- n:
		default:
			s.dropped++
		}
	}
}

func (s *Session) addSubLocked() int {
	id := s.nextSubID
	s.nextSubID++
	return id
}

func (s *Session) dropSub(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.statusSubs[id]; ok {
		delete(s.statusSubs, id)
		close(ch)
	}
	if ch, ok := s.notifSubs[id]; ok {
		delete(s.notifSubs, id)
		close(ch)
	}
	if ch, ok := s.fundSubs[id]; ok {
		delete(s.fundSubs, id)
		close(ch)
	}
	if ch, ok := s.marketSubs[id]; ok {
		delete(s.marketSubs, id)
		close(ch)
	}
}
