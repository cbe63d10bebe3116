package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport implements Transport over a single gorilla/websocket
// connection. One instance survives any number of connect/disconnect cycles;
// the push stream channels stay the same across reconnects.
type WSTransport struct {
	cfg    WSConfig
	logger *slog.Logger

	// Output channels, shared across connection generations
	status chan Status
	funds  chan Message
	market chan Message
	notifs chan Message

	cmdID int64 // Atomic counter

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	done       chan struct{} // Per-connection generation
	connected  bool
	lastPingAt time.Time
}

// NewWSTransport creates a WebSocket transport.
func NewWSTransport(cfg WSConfig, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultWSConfig().BufferSize
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = DefaultWSConfig().PingTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWSConfig().WriteTimeout
	}

	return &WSTransport{
		cfg:    cfg,
		logger: logger,
		status: make(chan Status, 16),
		funds:  make(chan Message, cfg.BufferSize),
		market: make(chan Message, cfg.BufferSize),
		notifs: make(chan Message, cfg.BufferSize),
	}
}

// Connect dials the push endpoint. No-op when already connected.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.emit(StatusConnecting)

	header := http.Header{}
	header.Set("Accept", "application/json")
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		t.emit(StatusDisconnected)
		return err
	}

	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.connected = true
	t.lastPingAt = time.Now()
	t.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		t.mu.Lock()
		t.lastPingAt = time.Now()
		t.mu.Unlock()
		return nil
	})

	go t.readLoop(conn, done)
	go t.heartbeatLoop(conn, done)

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	t.emit(StatusConnected)

	return nil
}

// Disconnect tears down the current connection, if any.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	wasConnected := t.connected
	t.conn = nil
	t.done = nil
	t.connected = false
	t.mu.Unlock()

	if done != nil {
		close(done)
	}

	var err error
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = conn.Close()
	}

	if wasConnected {
		t.emit(StatusDisconnected)
	}

	return err
}

// Status returns the connection-status stream.
func (t *WSTransport) Status() <-chan Status { return t.status }

// FundUpdates returns the raw fund update stream.
func (t *WSTransport) FundUpdates() <-chan Message { return t.funds }

// MarketData returns the raw market index stream.
func (t *WSTransport) MarketData() <-chan Message { return t.market }

// Notifications returns the raw system notification stream.
func (t *WSTransport) Notifications() <-chan Message { return t.notifs }

// SubscribeFunds sends a fund subscribe command.
func (t *WSTransport) SubscribeFunds(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return t.sendCommand("subscribe", subscribeParams{
		Channels: []string{channelFundUpdates},
		FundIDs:  ids,
	})
}

// UnsubscribeFunds sends a fund unsubscribe command.
func (t *WSTransport) UnsubscribeFunds(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return t.sendCommand("unsubscribe", subscribeParams{
		Channels: []string{channelFundUpdates},
		FundIDs:  ids,
	})
}

// SubscribeMarket sends a market data subscribe command.
func (t *WSTransport) SubscribeMarket(ctx context.Context, indices []string) error {
	if len(indices) == 0 {
		return nil
	}
	return t.sendCommand("subscribe", subscribeParams{
		Channels: []string{channelMarketData},
		Indices:  indices,
	})
}

// SubscribeNotifications sends a notification channel subscribe command.
func (t *WSTransport) SubscribeNotifications(ctx context.Context) error {
	return t.sendCommand("subscribe", subscribeParams{
		Channels: []string{channelNotifications},
	})
}

// sendCommand writes a single command frame. Fire and forget: subscription
// outcomes surface through the push streams, never as a blocking round trip.
func (t *WSTransport) sendCommand(cmd string, params subscribeParams) error {
	t.mu.RLock()
	conn := t.conn
	connected := t.connected
	t.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	frame := command{
		ID:     atomic.AddInt64(&t.cmdID, 1),
		Cmd:    cmd,
		Params: params,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames from one connection generation and routes them to
// the typed push streams.
func (t *WSTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after an intentional Disconnect
			select {
			case <-done:
			default:
				t.logger.Warn("websocket read failed", "error", err)
				t.dropConn(conn)
			}
			return
		}

		t.route(Message{Data: data, ReceivedAt: receivedAt})
	}
}

// route classifies a frame by its type field and pushes it to the matching
// stream, dropping with a warn when the stream buffer is full.
func (t *WSTransport) route(msg Message) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		t.logger.Warn("unparseable push frame", "error", err)
		return
	}

	var ch chan Message
	switch envelope.Type {
	case "fund_update":
		ch = t.funds
	case "market_index":
		ch = t.market
	case "notification":
		ch = t.notifs
	case "subscribed", "unsubscribed", "error", "ok":
		// Command acks carry no data
		t.logger.Debug("push channel ack", "type", envelope.Type)
		return
	default:
		t.logger.Debug("skipping frame type", "type", envelope.Type)
		return
	}

	select {
	case ch <- msg:
	default:
		t.logger.Warn("push stream buffer full, dropping frame", "type", envelope.Type)
	}
}

// heartbeatLoop keeps the connection alive and detects staleness.
func (t *WSTransport) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				t.dropConn(conn)
				return
			}
		}
	}
}

// dropConn tears down a failed connection and emits a Disconnected status.
// Only the generation that still owns t.conn performs the teardown; a
// concurrent Disconnect or a newer Connect wins.
func (t *WSTransport) dropConn(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	done := t.done
	t.conn = nil
	t.done = nil
	t.connected = false
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	conn.Close()

	t.emit(StatusDisconnected)
}

// emit pushes a status value without blocking.
func (t *WSTransport) emit(s Status) {
	select {
	case t.status <- s:
	default:
		t.logger.Warn("status buffer full, dropping transition", "status", s)
	}
}
