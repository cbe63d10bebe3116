package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leowzhang/fundwatch/internal/alert"
	"github.com/leowzhang/fundwatch/internal/model"
	"github.com/leowzhang/fundwatch/internal/transport"
)

// Sink receives routed events. PublishFundUpdate, PublishMarketUpdate, and
// PublishSystemNotification each account for one processed inbound event;
// PublishAlert carries a notification derived from an already-counted tick.
type Sink interface {
	PublishFundUpdate(u model.FundUpdate)
	PublishMarketUpdate(u model.MarketIndexUpdate)
	PublishSystemNotification(n model.Notification)
	PublishAlert(n model.Notification)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	Received    int64
	Routed      int64
	ParseErrors int64
}

// Router is the single consumer of the transport's push streams. It parses
// each raw frame, rejects malformed ones without propagation, publishes
// well-formed events to the sink in arrival order, and hands fund and market
// ticks to the alert synthesizer.
type Router struct {
	logger *slog.Logger
	synth  *alert.Synthesizer
	feed   *alert.Feed
	tr     transport.Transport
	sink   Sink

	// Status transitions are consumed on the same goroutine so connection
	// events interleave deterministically with data events.
	onStatus func(transport.Status)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats RouterStats
}

// NewRouter creates an update router.
func NewRouter(
	tr transport.Transport,
	synth *alert.Synthesizer,
	feed *alert.Feed,
	sink Sink,
	onStatus func(transport.Status),
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if onStatus == nil {
		onStatus = func(transport.Status) {}
	}

	return &Router{
		logger:   logger.With("component", "router"),
		synth:    synth,
		feed:     feed,
		tr:       tr,
		sink:     sink,
		onStatus: onStatus,
	}
}

// Start begins consuming transport events.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("update router started")
	return nil
}

// Stop shuts the router down.
func (r *Router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("update router stopped")
	case <-ctx.Done():
		r.logger.Warn("update router stop timed out")
	}
	return nil
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// routeLoop is the single consumer goroutine.
func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case st := <-r.tr.Status():
			r.onStatus(st)
		case msg := <-r.tr.FundUpdates():
			r.routeFund(msg)
		case msg := <-r.tr.MarketData():
			r.routeMarket(msg)
		case msg := <-r.tr.Notifications():
			r.routeNotification(msg)
		}
	}
}

func (r *Router) routeFund(msg transport.Message) {
	r.inc(func(st *RouterStats) { st.Received++ })

	u, err := parseFundUpdate(msg)
	if err != nil {
		r.reject("fund update", err)
		return
	}

	r.inc(func(st *RouterStats) { st.Routed++ })
	r.sink.PublishFundUpdate(u)

	if n, ok := r.synth.FromFundUpdate(u); ok {
		r.feed.Add(n)
		r.sink.PublishAlert(n)
	}
}

func (r *Router) routeMarket(msg transport.Message) {
	r.inc(func(st *RouterStats) { st.Received++ })

	u, err := parseMarketUpdate(msg)
	if err != nil {
		r.reject("market update", err)
		return
	}

	r.inc(func(st *RouterStats) { st.Routed++ })
	r.sink.PublishMarketUpdate(u)

	if n, ok := r.synth.FromMarketUpdate(u); ok {
		r.feed.Add(n)
		r.sink.PublishAlert(n)
	}
}

func (r *Router) routeNotification(msg transport.Message) {
	r.inc(func(st *RouterStats) { st.Received++ })

	n, err := parseNotification(msg)
	if err != nil {
		r.reject("notification", err)
		return
	}

	r.inc(func(st *RouterStats) { st.Routed++ })
	r.feed.Add(n)
	r.sink.PublishSystemNotification(n)
}

// reject drops a malformed event: diagnostic recorded, nothing propagated.
func (r *Router) reject(kind string, err error) {
	r.logger.Warn("dropping malformed event", "kind", kind, "error", err)
	r.inc(func(st *RouterStats) { st.ParseErrors++ })
}

func (r *Router) inc(fn func(*RouterStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Wire parsing
// -----------------------------------------------------------------------------

var (
	errMissingCode    = errors.New("missing fund_code")
	errMissingNAV     = errors.New("missing nav")
	errNegativeNAV    = errors.New("nav must be >= 0")
	errMissingChange  = errors.New("missing daily_change")
	errMissingIndex   = errors.New("missing index")
	errMissingValue   = errors.New("missing value")
	errMissingPercent = errors.New("missing change_percent")
	errMissingContent = errors.New("missing content")
)

// Required numeric fields use pointers so absence is distinguishable from a
// genuine zero.
type fundUpdateWire struct {
	FundID            string   `json:"fund_id"`
	Code              string   `json:"fund_code"`
	NAV               *float64 `json:"nav"`
	DailyChange       *float64 `json:"daily_change"`
	DailyChangeAmount *float64 `json:"daily_change_amount"`
	Ts                int64    `json:"ts"`
}

type marketUpdateWire struct {
	Index         string   `json:"index"`
	Value         *float64 `json:"value"`
	Change        float64  `json:"change"`
	ChangePercent *float64 `json:"change_percent"`
	Ts            int64    `json:"ts"`
}

type notificationWire struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Level   string `json:"level"`
	Ts      int64  `json:"ts"`
}

func parseFundUpdate(msg transport.Message) (model.FundUpdate, error) {
	var wire fundUpdateWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		return model.FundUpdate{}, err
	}

	switch {
	case wire.Code == "":
		return model.FundUpdate{}, errMissingCode
	case wire.NAV == nil:
		return model.FundUpdate{}, errMissingNAV
	case *wire.NAV < 0:
		return model.FundUpdate{}, errNegativeNAV
	case wire.DailyChange == nil:
		return model.FundUpdate{}, errMissingChange
	}

	u := model.FundUpdate{
		FundID:      wire.FundID,
		Code:        wire.Code,
		NAV:         *wire.NAV,
		DailyChange: *wire.DailyChange,
		UpdateTime:  eventTimestamp(wire.Ts, msg.ReceivedAt),
	}
	if u.FundID == "" {
		u.FundID = u.Code
	}
	if wire.DailyChangeAmount != nil {
		u.DailyChangeAmount = *wire.DailyChangeAmount
	} else {
		u.DailyChangeAmount = u.NAV * u.DailyChange
	}

	return u, nil
}

func parseMarketUpdate(msg transport.Message) (model.MarketIndexUpdate, error) {
	var wire marketUpdateWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		return model.MarketIndexUpdate{}, err
	}

	switch {
	case wire.Index == "":
		return model.MarketIndexUpdate{}, errMissingIndex
	case wire.Value == nil:
		return model.MarketIndexUpdate{}, errMissingValue
	case wire.ChangePercent == nil:
		return model.MarketIndexUpdate{}, errMissingPercent
	}

	return model.MarketIndexUpdate{
		Index:         wire.Index,
		CurrentValue:  *wire.Value,
		Change:        wire.Change,
		ChangePercent: *wire.ChangePercent,
		UpdateTime:    eventTimestamp(wire.Ts, msg.ReceivedAt),
	}, nil
}

func parseNotification(msg transport.Message) (model.Notification, error) {
	var wire notificationWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		return model.Notification{}, err
	}

	if wire.Content == "" {
		return model.Notification{}, errMissingContent
	}

	n := model.Notification{
		ID:        wire.ID,
		Title:     wire.Title,
		Content:   wire.Content,
		Level:     model.Level(wire.Level),
		Timestamp: eventTimestamp(wire.Ts, msg.ReceivedAt),
	}
	if n.ID == "" {
		n.ID = "system-" + uuid.NewString()
	}
	if n.Title == "" {
		n.Title = "System notice"
	}
	if !n.Level.Valid() {
		n.Level = model.LevelInfo
	}

	return n, nil
}

func eventTimestamp(ts int64, fallback time.Time) time.Time {
	if ts > 0 {
		return time.Unix(ts, 0)
	}
	return fallback
}
