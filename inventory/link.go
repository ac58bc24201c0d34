// Package inventory keeps the outbound WebSocket connection to the remote
// Inventory Service: it mirrors pushed stock into the StockCache and sends
// stock commands.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sales-service/cache"
	"sales-service/events"
	"sales-service/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TopicProduct is the broadcaster topic for stock frames.
const TopicProduct = events.TopicProduct

// State of the outbound connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Publisher receives every product frame the link applied.
type Publisher interface {
	Publish(topic string, payload interface{})
}

type Config struct {
	URL     string
	Backoff Backoff
	// ReplyTimeout > 0 makes SendCommand wait for the remote's reply.
	ReplyTimeout time.Duration
	// EchoesCorrelationID is set when the remote copies correlationId into
	// its replies; without it only one SendAndAwait runs at a time.
	EchoesCorrelationID bool
	WriteTimeout        time.Duration
	HandshakeTimeout    time.Duration
	// RecoverDelay is the pause after a frame handler panicked.
	RecoverDelay time.Duration
	// A connection with no frame or pong for PongWait is treated as dead.
	PongWait     time.Duration
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Backoff.Base == 0 && c.Backoff.Max == 0 {
		c.Backoff = DefaultBackoff()
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.RecoverDelay <= 0 {
		c.RecoverDelay = time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	return c
}

// Link is the single outbound connection. Run owns the receive loop; every
// other method is safe to call from any goroutine.
type Link struct {
	cfg       Config
	cache     *cache.StockCache
	publisher Publisher
	logger    *zap.Logger
	dialer    *websocket.Dialer

	state    atomic.Int32
	attempts atomic.Int32
	closed   atomic.Bool

	dialMu  sync.Mutex
	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	wake    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan models.StockStatusMessage
	awaitMu   sync.Mutex
}

// NewLink builds a disconnected link. publisher may be nil.
func NewLink(cfg Config, stock *cache.StockCache, publisher Publisher, logger *zap.Logger) *Link {
	cfg = cfg.withDefaults()
	return &Link{
		cfg:       cfg,
		cache:     stock,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "inventory_link"), zap.String("url", cfg.URL)),
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		wake:      make(chan struct{}, 1),
		pending:   make(map[string]chan models.StockStatusMessage),
	}
}

func (l *Link) State() State {
	return State(l.state.Load())
}

func (l *Link) setState(s State) {
	if prev := State(l.state.Swap(int32(s))); prev != s {
		l.logger.Info("inventory link state changed",
			zap.String("from", prev.String()),
			zap.String("to", s.String()),
		)
	}
}

// Run connects and reads until ctx is cancelled or Close is called,
// reconnecting with backoff after every failure. It never gives up on its
// own.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.Close)
	defer stop()

	for {
		if l.closed.Load() {
			return l.exitErr(ctx)
		}

		conn, err := l.ensureConn(ctx, false)
		if err == nil {
			l.readLoop(ctx, conn)
			l.dropConn(conn)
		} else if !l.closed.Load() {
			l.logger.Warn("inventory connect failed", zap.Error(err))
		}

		if l.closed.Load() {
			return l.exitErr(ctx)
		}

		attempt := int(l.attempts.Add(1) - 1)
		delay := l.cfg.Backoff.Delay(attempt)
		l.logger.Info("inventory reconnect scheduled",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.exitErr(ctx)
		case <-l.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (l *Link) exitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Close stops Run and releases the connection. Pending sends fail with
// ErrClosed from then on.
func (l *Link) Close() {
	if l.closed.Swap(true) {
		return
	}
	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.connMu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	l.setState(StateDisconnected)
}

func (l *Link) current() *websocket.Conn {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn
}

// ensureConn returns the live connection or dials one. notify wakes Run
// when the dial happened outside of it.
func (l *Link) ensureConn(ctx context.Context, notify bool) (*websocket.Conn, error) {
	l.dialMu.Lock()
	defer l.dialMu.Unlock()

	if l.closed.Load() {
		return nil, ErrClosed
	}
	if conn := l.current(); conn != nil {
		return conn, nil
	}

	l.setState(StateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := l.dialer.DialContext(dialCtx, l.cfg.URL, nil)
	if err != nil {
		l.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	l.connMu.Lock()
	if l.closed.Load() {
		l.connMu.Unlock()
		_ = conn.Close()
		l.setState(StateDisconnected)
		return nil, ErrClosed
	}
	l.conn = conn
	l.connMu.Unlock()

	l.attempts.Store(0)
	l.setState(StateConnected)

	if notify {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	return conn, nil
}

func (l *Link) dropConn(conn *websocket.Conn) {
	l.connMu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.connMu.Unlock()
	_ = conn.Close()
	l.setState(StateDisconnected)
}

func (l *Link) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go l.pingLoop(conn, stop)

	_ = conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !l.closed.Load() {
				l.logger.Warn("inventory connection lost", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		if !l.dispatch(data) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.cfg.RecoverDelay):
			}
		}
	}
}

// pingLoop keeps the read deadline meaningful on a quiet connection. A peer
// that stops answering makes the next read fail, which triggers a reconnect.
func (l *Link) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				l.logger.Debug("inventory ping failed", zap.Error(err))
				return
			}
		}
	}
}

// dispatch applies one frame. It returns false if handling panicked.
func (l *Link) dispatch(data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("inventory frame handler panicked",
				zap.Any("panic", r),
				zap.ByteString("frame", data),
			)
			ok = false
		}
	}()

	msg := ParseMessage(data)
	switch msg.Kind {
	case KindGlobal:
		l.cache.ReplaceAll(msg.Products)
		l.forward(json.RawMessage(data))
	case KindSingle:
		l.cache.UpsertProduct(*msg.Product)
		l.forward(json.RawMessage(data))
	case KindStatus:
		if qty, has := msg.Status.Stock(); has && l.cache.ApplyStatus(msg.Status.ProductID, qty, msg.Status.Status) {
			l.forwardCached(msg.Status.ProductID)
		}
		l.deliver(*msg.Status)
	default:
		l.logger.Warn("dropping unrecognised inventory frame", zap.ByteString("frame", data))
	}
	return true
}

func (l *Link) forward(payload interface{}) {
	if l.publisher != nil {
		l.publisher.Publish(TopicProduct, payload)
	}
}

// forwardCached announces a product changed by a status reply in the
// single productUpdate shape subscribers already understand.
func (l *Link) forwardCached(productID int) {
	status, ok := l.cache.Get(productID)
	if !ok {
		return
	}
	p := models.PayloadFromStatus(status)
	l.forward(models.ProductUpdateMessage{
		Type:           models.MessageTypeProductUpdate,
		UpdateType:     models.UpdateTypeSingle,
		UpdatedProduct: &p,
	})
}

func (l *Link) deliver(reply models.StockStatusMessage) {
	key := ""
	if l.cfg.EchoesCorrelationID {
		if reply.CorrelationID == "" {
			return
		}
		key = reply.CorrelationID
	}

	l.pendingMu.Lock()
	ch, ok := l.pending[key]
	if ok {
		delete(l.pending, key)
	}
	l.pendingMu.Unlock()

	if ok {
		ch <- reply
	}
}

// SendCommand sends one stock command, dialing first when disconnected. With
// a reply timeout configured it also waits for the reply and reports a
// status "error" reply as ErrRejected.
func (l *Link) SendCommand(ctx context.Context, productID, quantity int, action string) error {
	cmd := models.StockCommand{ProductID: productID, Quantity: quantity, Action: action}

	if l.cfg.ReplyTimeout <= 0 {
		return l.send(ctx, cmd)
	}

	reply, err := l.SendAndAwait(ctx, cmd, l.cfg.ReplyTimeout)
	if err != nil {
		return err
	}
	if reply.Status == models.StatusError {
		return fmt.Errorf("%w: product %d: %s", ErrRejected, productID, reply.Message)
	}
	return nil
}

// SendAndAwait sends cmd and waits up to timeout for its reply.
func (l *Link) SendAndAwait(ctx context.Context, cmd models.StockCommand, timeout time.Duration) (models.StockStatusMessage, error) {
	key := ""
	if l.cfg.EchoesCorrelationID {
		if cmd.CorrelationID == "" {
			cmd.CorrelationID = uuid.NewString()
		}
		key = cmd.CorrelationID
	} else {
		// one waiter at a time; it takes the next status frame
		l.awaitMu.Lock()
		defer l.awaitMu.Unlock()
		cmd.CorrelationID = ""
	}

	ch := make(chan models.StockStatusMessage, 1)
	l.pendingMu.Lock()
	l.pending[key] = ch
	l.pendingMu.Unlock()
	defer func() {
		l.pendingMu.Lock()
		if l.pending[key] == ch {
			delete(l.pending, key)
		}
		l.pendingMu.Unlock()
	}()

	if err := l.send(ctx, cmd); err != nil {
		return models.StockStatusMessage{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return models.StockStatusMessage{}, fmt.Errorf("%w: product %d after %s", ErrReplyTimeout, cmd.ProductID, timeout)
	case <-ctx.Done():
		return models.StockStatusMessage{}, ctx.Err()
	}
}

func (l *Link) send(ctx context.Context, cmd models.StockCommand) error {
	conn, err := l.ensureConn(ctx, true)
	if err != nil {
		return err
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	l.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, body)
	l.writeMu.Unlock()

	if err != nil {
		l.dropConn(conn)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	l.logger.Debug("inventory command sent",
		zap.Int("product_id", cmd.ProductID),
		zap.Int("quantity", cmd.Quantity),
		zap.String("action", cmd.Action),
	)
	return nil
}
