package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the last known state of one remote product.
type ProductStatus struct {
	ProductID     int             `json:"productId"`
	Name          string          `json:"productName"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    int             `json:"categoryId,omitempty"`
	StockQuantity int             `json:"quantity"`
	IsAvailable   bool            `json:"isAvailable"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Inventory message types and update kinds used on both WebSocket endpoints.
const (
	MessageTypeProductUpdate      = "productUpdate"
	MessageTypeOrderUpdate        = "orderUpdate"
	MessageTypeOrderProductUpdate = "orderProductUpdate"
	MessageTypeCustomerUpdate     = "customerUpdate"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"

	UpdateTypeGlobal = "global"
	UpdateTypeSingle = "single"
)

// Commands understood by the remote Inventory Service.
const (
	ActionTakeProduct   = "takeProduct"
	ActionReturnProduct = "returnProduct"
	ActionGetProduct    = "getProduct"
)

// Reply statuses sent by the remote Inventory Service.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ProductPayload is a product as the remote Inventory Service serialises it.
type ProductPayload struct {
	ProductID   int             `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  int             `json:"categoryId"`
}

// ToStatus converts a wire product into a cache entry stamped at now.
func (p ProductPayload) ToStatus(now time.Time) ProductStatus {
	return ProductStatus{
		ProductID:     p.ProductID,
		Name:          p.ProductName,
		Price:         p.Price,
		CategoryID:    p.CategoryID,
		StockQuantity: p.Quantity,
		IsAvailable:   p.Quantity > 0,
		LastUpdated:   now,
	}
}

// PayloadFromStatus is the inverse of ToStatus.
func PayloadFromStatus(s ProductStatus) ProductPayload {
	return ProductPayload{
		ProductID:   s.ProductID,
		ProductName: s.Name,
		Quantity:    s.StockQuantity,
		Price:       s.Price,
		CategoryID:  s.CategoryID,
	}
}

// ProductUpdateMessage is the push message for a global snapshot or a
// single product change.
type ProductUpdateMessage struct {
	Type           string           `json:"type"`
	UpdateType     string           `json:"updateType"`
	Products       []ProductPayload `json:"products,omitempty"`
	UpdatedProduct *ProductPayload  `json:"updatedProduct,omitempty"`
}

// StockStatusMessage is the fallback shape: a status line for one product,
// also used by the remote as the reply to a command.
type StockStatusMessage struct {
	ProductID      int    `json:"productId"`
	Quantity       *int   `json:"quantity,omitempty"`
	RemainingStock *int   `json:"remainingStock,omitempty"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	CorrelationID  string `json:"correlationId,omitempty"`
}

// Stock returns the reported quantity, preferring remainingStock.
func (m StockStatusMessage) Stock() (int, bool) {
	if m.RemainingStock != nil {
		return *m.RemainingStock, true
	}
	if m.Quantity != nil {
		return *m.Quantity, true
	}
	return 0, false
}

// StockCommand is sent to the remote Inventory Service.
type StockCommand struct {
	ProductID     int    `json:"productId"`
	Quantity      int    `json:"quantity"`
	Action        string `json:"action"`
	CorrelationID string `json:"correlationId,omitempty"`
}
