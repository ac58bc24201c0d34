package controllers

import (
	"context"
	"net/http"
	"time"

	"sales-service/inventory"
	"sales-service/models"

	"github.com/gin-gonic/gin"
)

// StockSnapshotter is the read side of the stock cache used here.
type StockSnapshotter interface {
	Snapshot() ([]models.ProductStatus, bool)
}

// LinkStatus reports the Inventory Service connection state.
type LinkStatus interface {
	State() inventory.State
}

// SubscriberCounter reports connected hub clients.
type SubscriberCounter interface {
	Count() int
}

// QueueLength reports pending reconcile commands.
type QueueLength interface {
	Len(ctx context.Context) (int64, error)
}

// InventoryController exposes the cached stock and the service health.
type InventoryController struct {
	stock StockSnapshotter
	link  LinkStatus
	hub   SubscriberCounter
	queue QueueLength
}

// NewInventoryController creates a new InventoryController. queue may be nil.
func NewInventoryController(stock StockSnapshotter, link LinkStatus, hub SubscriberCounter, queue QueueLength) *InventoryController {
	return &InventoryController{stock: stock, link: link, hub: hub, queue: queue}
}

// Inventory handles GET /api/inventory
func (ic *InventoryController) Inventory(ctx *gin.Context) {
	products, synced := ic.stock.Snapshot()
	if products == nil {
		products = []models.ProductStatus{}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"products":         products,
		"synced":           synced,
		"inventoryService": ic.link.State().String(),
	})
}

// Health handles GET /health. It stays 200 while the Inventory Service is
// unreachable; the link state is reported instead.
func (ic *InventoryController) Health(ctx *gin.Context) {
	body := gin.H{
		"status":           "ok",
		"inventoryService": ic.link.State().String(),
		"subscribers":      ic.hub.Count(),
		"timestamp":        time.Now().UTC(),
	}
	if ic.queue != nil {
		qctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
		defer cancel()
		if n, err := ic.queue.Len(qctx); err == nil {
			body["pendingDecrements"] = n
		} else {
			body["pendingDecrements"] = "unavailable"
		}
	}
	ctx.JSON(http.StatusOK, body)
}
