// Package cache holds the in-memory mirror of remote product stock.
package cache

import (
	"sort"
	"sync"
	"time"

	"sales-service/models"

	"github.com/shopspring/decimal"
)

// ProductFields is a partial product update. Nil fields keep their cached
// value; a product seen for the first time starts from zero values.
type ProductFields struct {
	Name       *string
	Price      *decimal.Decimal
	CategoryID *int
	Quantity   *int
}

// StockCache is safe for concurrent use. Callers never lock it.
type StockCache struct {
	mu         sync.RWMutex
	products   map[int]models.ProductStatus
	haveGlobal bool
	now        func() time.Time
}

func NewStockCache() *StockCache {
	return &StockCache{
		products: make(map[int]models.ProductStatus),
		now:      time.Now,
	}
}

// ReplaceAll swaps the whole product set for products.
func (c *StockCache) ReplaceAll(products []models.ProductPayload) {
	now := c.now()
	next := make(map[int]models.ProductStatus, len(products))
	for _, p := range products {
		next[p.ProductID] = p.ToStatus(now)
	}

	c.mu.Lock()
	c.products = next
	c.haveGlobal = true
	c.mu.Unlock()
}

// Upsert applies fields to one product, creating it when absent.
func (c *StockCache) Upsert(productID int, fields ProductFields) models.ProductStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.products[productID]
	if !ok {
		status = models.ProductStatus{ProductID: productID}
	}
	if fields.Name != nil {
		status.Name = *fields.Name
	}
	if fields.Price != nil {
		status.Price = *fields.Price
	}
	if fields.CategoryID != nil {
		status.CategoryID = *fields.CategoryID
	}
	if fields.Quantity != nil {
		status.StockQuantity = *fields.Quantity
	}
	status.IsAvailable = status.StockQuantity > 0
	status.LastUpdated = c.now()

	c.products[productID] = status
	return status
}

// UpsertProduct replaces a single product with a full wire payload.
func (c *StockCache) UpsertProduct(p models.ProductPayload) models.ProductStatus {
	return c.Upsert(p.ProductID, ProductFields{
		Name:       &p.ProductName,
		Price:      &p.Price,
		CategoryID: &p.CategoryID,
		Quantity:   &p.Quantity,
	})
}

// ApplyStatus handles the fallback {productId, quantity, status} message.
// An error status never changes the cache.
func (c *StockCache) ApplyStatus(productID, quantity int, status string) bool {
	if status == models.StatusError || productID <= 0 {
		return false
	}
	c.Upsert(productID, ProductFields{Quantity: &quantity})
	return true
}

func (c *StockCache) Get(productID int) (models.ProductStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.products[productID]
	return status, ok
}

// AvailableStock is 0 for unknown products.
func (c *StockCache) AvailableStock(productID int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products[productID].StockQuantity
}

func (c *StockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Snapshot returns all products ordered by id, and whether a global push
// has ever been applied.
func (c *StockCache) Snapshot() ([]models.ProductStatus, bool) {
	c.mu.RLock()
	out := make([]models.ProductStatus, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	haveGlobal := c.haveGlobal
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, haveGlobal
}
