package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sales-service/cache"
	"sales-service/events"
	"sales-service/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serve(t *testing.T, handler http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func seededCache() *cache.StockCache {
	stock := cache.NewStockCache()
	stock.ReplaceAll([]models.ProductPayload{{
		ProductID: 5, ProductName: "Tea", Quantity: 3,
		Price: decimal.RequireFromString("10.00"), CategoryID: 1,
	}})
	return stock
}

func TestHub_NewSubscriberGetsSnapshot(t *testing.T) {
	h := New(Config{}, zap.NewNop(), InventorySnapshot(seededCache()))
	defer h.Close()
	conn := dial(t, serve(t, h))

	var msg models.ProductUpdateMessage
	require.NoError(t, json.Unmarshal([]byte(readFrame(t, conn)), &msg))
	assert.Equal(t, models.MessageTypeProductUpdate, msg.Type)
	assert.Equal(t, models.UpdateTypeGlobal, msg.UpdateType)
	require.Len(t, msg.Products, 1)
	assert.Equal(t, 5, msg.Products[0].ProductID)
	assert.Equal(t, 3, msg.Products[0].Quantity)
}

func TestHub_NoSnapshotBeforeFirstPush(t *testing.T) {
	h := New(Config{}, zap.NewNop(), InventorySnapshot(cache.NewStockCache()))
	defer h.Close()
	conn := dial(t, serve(t, h))

	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.Broadcast([]byte(`{"type":"customerUpdate"}`))
	assert.JSONEq(t, `{"type":"customerUpdate"}`, readFrame(t, conn))
}

func TestHub_FanOutPreservesOrderPerSubscriber(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	defer h.Close()
	url := serve(t, h)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return h.Count() == 2 }, 2*time.Second, 5*time.Millisecond)

	for _, frame := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		h.Broadcast([]byte(frame))
	}

	for _, conn := range []*websocket.Conn{a, b} {
		assert.JSONEq(t, `{"n":1}`, readFrame(t, conn))
		assert.JSONEq(t, `{"n":2}`, readFrame(t, conn))
		assert.JSONEq(t, `{"n":3}`, readFrame(t, conn))
	}
}

func TestHub_PingGetsPong(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	defer h.Close()
	conn := dial(t, serve(t, h))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.JSONEq(t, `{"type":"pong"}`, readFrame(t, conn))
}

func TestHub_ClosedSubscriberIsRemoved(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	defer h.Close()
	url := serve(t, h)
	gone := dial(t, url)
	stays := dial(t, url)
	require.Eventually(t, func() bool { return h.Count() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, gone.Close())
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.Broadcast([]byte(`{"still":"here"}`))
	assert.JSONEq(t, `{"still":"here"}`, readFrame(t, stays))
}

func TestHub_FullQueueDropsSubscriber(t *testing.T) {
	h := New(Config{SendBuffer: 1}, zap.NewNop())
	defer h.Close()

	// register without pumps so nothing drains the queue
	registered := make(chan *client, 1)
	url := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newClient(h, conn)
		h.register(c)
		registered <- c
	}))
	dial(t, url)
	stuck := <-registered

	h.Broadcast([]byte(`{"n":1}`))
	assert.Equal(t, 1, h.Count())
	h.Broadcast([]byte(`{"n":2}`))
	assert.Equal(t, 0, h.Count())
	assert.False(t, stuck.enqueue([]byte(`{"n":3}`)))
}

func TestHub_HandleEventPassesRawFramesThrough(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	defer h.Close()
	conn := dial(t, serve(t, h))
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	raw := `{"type":"productUpdate","updateType":"single","updatedProduct":{"productId":5,"productName":"Tea","quantity":2,"price":10.00,"categoryId":1}}`
	h.HandleEvent(events.Event{Topic: events.TopicProduct, Payload: json.RawMessage(raw)})
	assert.Equal(t, raw, readFrame(t, conn))

	h.HandleEvent(events.Event{Topic: events.TopicCustomer, Payload: models.CustomerUpdateMessage{
		Type: models.MessageTypeCustomerUpdate, UpdateType: models.UpdateTypeSingle, Action: models.ActionCreated,
		Customer: &models.Customer{CustomerID: 1, Name: "Ada"},
	}})
	assert.Contains(t, readFrame(t, conn), `"customerUpdate"`)
}

func TestHub_CloseDisconnectsAndRefuses(t *testing.T) {
	h := New(Config{}, zap.NewNop())
	url := serve(t, h)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	if assert.NotNil(t, resp) {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
}

func TestHub_BroadcastLogsSlowAndClosedSubscribersApart(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := New(Config{SendBuffer: 1}, zap.New(core))
	defer h.Close()

	registered := make(chan *client, 2)
	url := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newClient(h, conn)
		h.register(c)
		registered <- c
	}))
	dial(t, url)
	closing := <-registered
	dial(t, url)
	slow := <-registered
	require.Equal(t, 2, h.Count())

	// closed but not yet unregistered by its pumps
	closing.close()
	require.True(t, slow.enqueue([]byte(`{"n":0}`)))

	h.Broadcast([]byte(`{"n":1}`))
	assert.Equal(t, 0, h.Count())

	assert.Equal(t, 1, logs.FilterMessage("subscriber too slow, dropping").Len())
	closedLogs := logs.FilterMessage("subscriber closed before delivery").All()
	require.Len(t, closedLogs, 1)
	assert.Equal(t, zapcore.DebugLevel, closedLogs[0].Level)
}
