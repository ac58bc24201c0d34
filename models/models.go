package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	// Prices travel as JSON numbers on both WebSocket endpoints.
	decimal.MarshalJSONWithoutQuotes = true
}

// Customer places orders. It must exist before an order referencing it.
type Customer struct {
	CustomerID    int       `gorm:"column:customer_id;primaryKey;autoIncrement" json:"customerId"`
	Name          string    `gorm:"type:varchar(128);not null" json:"name" binding:"required"`
	ContactNumber string    `gorm:"type:varchar(32)" json:"contactNumber"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"-"`
	Orders        []Order   `gorm:"foreignKey:CustomerID" json:"orders,omitempty"`
}

// Order is a sale header. IsCheckedOut flips false->true exactly once.
type Order struct {
	OrderID       int            `gorm:"column:order_id;primaryKey;autoIncrement" json:"orderId"`
	CustomerID    int            `gorm:"column:customer_id;not null;index" json:"customerId"`
	OrderDate     time.Time      `gorm:"not null" json:"orderDate"`
	IsCheckedOut  bool           `gorm:"column:is_checked_out;not null;default:false" json:"isCheckedOut"`
	Customer      *Customer      `gorm:"foreignKey:CustomerID;references:CustomerID" json:"customer,omitempty"`
	OrderProducts []OrderProduct `gorm:"foreignKey:OrderID;references:OrderID;constraint:OnDelete:CASCADE" json:"orderProducts"`
}

// MaxLineQuantity bounds a single order line, including increments.
const MaxLineQuantity = 1000000

// OrderProduct is one order line, identified by (OrderID, ProductID).
type OrderProduct struct {
	OrderID           int             `gorm:"column:order_id;primaryKey;autoIncrement:false" json:"orderId"`
	ProductID         int             `gorm:"column:product_id;primaryKey;autoIncrement:false" json:"productId"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	UnitPriceAtOrder  decimal.Decimal `gorm:"column:unit_price_at_order;type:numeric(12,2);not null" json:"unitPriceAtOrder"`
	TotalPriceAtOrder decimal.Decimal `gorm:"column:total_price_at_order;type:numeric(12,2);not null" json:"totalPriceAtOrder"`
}

// TableName keeps the plural the rest of the system uses.
func (OrderProduct) TableName() string {
	return "order_products"
}

// RecomputeTotal sets TotalPriceAtOrder = UnitPriceAtOrder * Quantity.
func (op *OrderProduct) RecomputeTotal() {
	op.TotalPriceAtOrder = op.UnitPriceAtOrder.Mul(decimal.NewFromInt(int64(op.Quantity)))
}

// BeforeSave enforces the line total invariant on every gorm write.
func (op *OrderProduct) BeforeSave(tx *gorm.DB) error {
	op.RecomputeTotal()
	return nil
}

// Total sums the line totals of a loaded order.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.OrderProducts {
		total = total.Add(line.TotalPriceAtOrder)
	}
	return total
}
