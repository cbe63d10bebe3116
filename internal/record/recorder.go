package record

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leowzhang/fundwatch/internal/config"
	"github.com/leowzhang/fundwatch/internal/model"
)

// Metrics tracks recorder database activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// navRow is a flattened NAV tick ready for insertion.
type navRow struct {
	FundID            string
	FundCode          string
	NAV               float64
	DailyChange       float64
	DailyChangeAmount float64
	UpdateTime        int64
	ReceivedAt        int64
}

// marketRow is a flattened market index tick ready for insertion.
type marketRow struct {
	Index         string
	CurrentValue  float64
	Change        float64
	ChangePercent float64
	UpdateTime    int64
	ReceivedAt    int64
}

// batchSender is the subset of pgxpool.Pool the recorder writes through.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Recorder consumes fund and market streams and persists ticks in batches.
type Recorder struct {
	cfg    config.RecorderConfig
	logger *slog.Logger

	// Input streams
	funds      <-chan model.FundUpdate
	market     <-chan model.MarketIndexUpdate
	cancelSubs []func()

	// Database
	db batchSender

	// Batching
	navBatch    []navRow
	marketBatch []marketRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewRecorder creates a Recorder over the given streams. The cancel
// functions are invoked on Stop to detach from the stream source.
func NewRecorder(
	cfg config.RecorderConfig,
	funds <-chan model.FundUpdate,
	cancelFunds func(),
	market <-chan model.MarketIndexUpdate,
	cancelMarket func(),
	db *pgxpool.Pool,
	logger *slog.Logger,
) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:         cfg,
		funds:       funds,
		market:      market,
		cancelSubs:  []func(){cancelFunds, cancelMarket},
		db:          db,
		logger:      logger,
		navBatch:    make([]navRow, 0, cfg.BatchSize),
		marketBatch: make([]marketRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming ticks and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("tick recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, flushing any pending rows.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping tick recorder")

	for _, cancel := range r.cancelSubs {
		if cancel != nil {
			cancel()
		}
	}

	if r.cancel != nil {
		r.cancel()
	}

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("tick recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("tick recorder stop timed out")
	}

	// Final flush. r.ctx is already canceled at this point, so the flush
	// needs its own bounded context or the buffered rows would be lost.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.flush(flushCtx)

	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop reads both streams and accumulates batches.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case u, ok := <-r.funds:
			if !ok {
				r.funds = nil
				if r.market == nil {
					return
				}
				continue
			}
			r.handleFund(u)
		case u, ok := <-r.market:
			if !ok {
				r.market = nil
				if r.funds == nil {
					return
				}
				continue
			}
			r.handleMarket(u)
		}
	}
}

// flushLoop periodically flushes the batches.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

func (r *Recorder) handleFund(u model.FundUpdate) {
	row := navRow{
		FundID:            u.FundID,
		FundCode:          u.Code,
		NAV:               u.NAV,
		DailyChange:       u.DailyChange,
		DailyChangeAmount: u.DailyChangeAmount,
		UpdateTime:        u.UpdateTime.UnixMicro(),
		ReceivedAt:        time.Now().UnixMicro(),
	}

	r.batchMu.Lock()
	r.navBatch = append(r.navBatch, row)
	shouldFlush := len(r.navBatch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

func (r *Recorder) handleMarket(u model.MarketIndexUpdate) {
	row := marketRow{
		Index:         u.Index,
		CurrentValue:  u.CurrentValue,
		Change:        u.Change,
		ChangePercent: u.ChangePercent,
		UpdateTime:    u.UpdateTime.UnixMicro(),
		ReceivedAt:    time.Now().UnixMicro(),
	}

	r.batchMu.Lock()
	r.marketBatch = append(r.marketBatch, row)
	shouldFlush := len(r.marketBatch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// flush writes both pending batches to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	navBatch := r.navBatch
	marketBatch := r.marketBatch
	if len(navBatch) == 0 && len(marketBatch) == 0 {
		r.batchMu.Unlock()
		return
	}
	r.navBatch = make([]navRow, 0, r.cfg.BatchSize)
	r.marketBatch = make([]marketRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, navBatch, marketBatch)
	if err != nil {
		r.logger.Error("batch insert failed",
			"error", err,
			"nav_count", len(navBatch),
			"market_count", len(marketBatch),
		)
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	total := len(navBatch) + len(marketBatch)
	r.batchMu.Lock()
	r.metrics.Inserts += int64(total - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed ticks",
		"nav_count", len(navBatch),
		"market_count", len(marketBatch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, navRows []navRow, marketRows []marketRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range navRows {
		batch.Queue(`
			INSERT INTO nav_ticks (fund_id, fund_code, nav, daily_change, daily_change_amount, update_time, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (fund_id, update_time) DO NOTHING
		`, row.FundID, row.FundCode, row.NAV, row.DailyChange, row.DailyChangeAmount, row.UpdateTime, row.ReceivedAt)
	}
	for _, row := range marketRows {
		batch.Queue(`
			INSERT INTO market_ticks (index_name, current_value, change, change_percent, update_time, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (index_name, update_time) DO NOTHING
		`, row.Index, row.CurrentValue, row.Change, row.ChangePercent, row.UpdateTime, row.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(navRows)+len(marketRows); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
