// Package hub serves the downstream WebSocket endpoint for sales
// subscribers.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sales-service/cache"
	"sales-service/events"
	"sales-service/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SnapshotFunc returns a frame every new subscriber gets before any live
// event, or false when there is nothing to replay yet.
type SnapshotFunc func() ([]byte, bool)

type Config struct {
	WriteTimeout time.Duration
	SendBuffer   int
	PingInterval time.Duration
	PongWait     time.Duration
	ReadLimit    int64
	// InboundRate bounds frames accepted per client per second.
	InboundRate  rate.Limit
	InboundBurst int
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 5
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 10
	}
	return c
}

// Hub owns the subscriber set. Each subscriber has its own queue and
// writer goroutine, so a stalled client never delays the others.
type Hub struct {
	cfg       Config
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	snapshots []SnapshotFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func New(cfg Config, logger *zap.Logger, snapshots ...SnapshotFunc) *Hub {
	return &Hub{
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("component", "sales_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browser front-ends are served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		snapshots: snapshots,
		clients:   make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, conn)
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// register queues the snapshots and adds c in one critical section, so no
// broadcast can slip in front of the snapshot.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	for _, snap := range h.snapshots {
		if frame, ok := snap(); ok {
			c.enqueue(frame)
		}
	}
	h.clients[c] = struct{}{}

	h.logger.Info("subscriber connected",
		zap.String("remote", c.conn.RemoteAddr().String()),
		zap.Int("subscribers", len(h.clients)),
	)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Info("subscriber removed",
			zap.String("remote", c.conn.RemoteAddr().String()),
			zap.Int("subscribers", n),
		)
	}
}

// Broadcast queues frame for every subscriber. A subscriber whose queue is
// full is dropped; one already closing is just unregistered.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	var dropped []*client
	for c := range h.clients {
		if !c.enqueue(frame) {
			delete(h.clients, c)
			dropped = append(dropped, c)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		remote := zap.String("remote", c.conn.RemoteAddr().String())
		if c.isClosed() {
			h.logger.Debug("subscriber closed before delivery", remote)
			continue
		}
		h.logger.Warn("subscriber too slow, dropping", remote)
		c.close()
	}
}

// HandleEvent serialises an event once and fans it out. It is meant to be
// subscribed to the broadcaster for every topic.
func (h *Hub) HandleEvent(evt events.Event) {
	frame, err := json.Marshal(evt.Payload)
	if err != nil {
		h.logger.Error("event not serialisable", zap.String("topic", evt.Topic), zap.Error(err))
		return
	}
	h.Broadcast(frame)
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// InventorySnapshot replays the cached product list as a global
// productUpdate frame.
func InventorySnapshot(stock *cache.StockCache) SnapshotFunc {
	return func() ([]byte, bool) {
		products, haveGlobal := stock.Snapshot()
		if !haveGlobal && len(products) == 0 {
			return nil, false
		}
		payloads := make([]models.ProductPayload, 0, len(products))
		for _, p := range products {
			payloads = append(payloads, models.PayloadFromStatus(p))
		}
		frame, err := json.Marshal(models.ProductUpdateMessage{
			Type:       models.MessageTypeProductUpdate,
			UpdateType: models.UpdateTypeGlobal,
			Products:   payloads,
		})
		if err != nil {
			return nil, false
		}
		return frame, true
	}
}
