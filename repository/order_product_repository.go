package repository

import (
	"context"
	"errors"

	"sales-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuantityOutOfRange is returned when a write would leave a line
// outside 1..models.MaxLineQuantity.
var ErrQuantityOutOfRange = errors.New("order line quantity out of range")

// OrderProductRepository defines data access for order lines
type OrderProductRepository interface {
	AddOrIncrement(ctx context.Context, line *models.OrderProduct) (*models.OrderProduct, error)
	SetQuantity(ctx context.Context, orderID, productID, quantity int) (*models.OrderProduct, error)
	Remove(ctx context.Context, orderID, productID int) error
	Find(ctx context.Context, orderID, productID int) (*models.OrderProduct, error)
	FindByOrder(ctx context.Context, orderID int) ([]models.OrderProduct, error)
	FindOpen(ctx context.Context) ([]models.OrderProduct, error)
}

type GormOrderProductRepository struct {
	db *gorm.DB
}

func NewGormOrderProductRepository(db *gorm.DB) OrderProductRepository {
	return &GormOrderProductRepository{db: db}
}

func (r *GormOrderProductRepository) lock(ctx context.Context, orderID, productID int) (*models.OrderProduct, error) {
	var line models.OrderProduct
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Take(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *GormOrderProductRepository) writeQuantity(ctx context.Context, line *models.OrderProduct) error {
	line.RecomputeTotal()
	return r.db.WithContext(ctx).
		Model(&models.OrderProduct{}).
		Where("order_id = ? AND product_id = ?", line.OrderID, line.ProductID).
		UpdateColumns(map[string]interface{}{
			"quantity":             line.Quantity,
			"total_price_at_order": line.TotalPriceAtOrder,
		}).Error
}

// AddOrIncrement inserts line, or adds line.Quantity to an existing
// (order, product) row. An existing row keeps its original unit price.
func (r *GormOrderProductRepository) AddOrIncrement(ctx context.Context, line *models.OrderProduct) (*models.OrderProduct, error) {
	if line.Quantity < 1 || line.Quantity > models.MaxLineQuantity {
		return nil, ErrQuantityOutOfRange
	}
	existing, err := r.lock(ctx, line.OrderID, line.ProductID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := *line
		created.RecomputeTotal()
		if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
			return nil, err
		}
		return &created, nil
	}
	if err != nil {
		return nil, err
	}

	if line.Quantity > models.MaxLineQuantity-existing.Quantity {
		return nil, ErrQuantityOutOfRange
	}
	existing.Quantity += line.Quantity
	if err := r.writeQuantity(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// SetQuantity overwrites the quantity of an existing line. A quantity of
// zero or less removes the row and returns a nil line.
func (r *GormOrderProductRepository) SetQuantity(ctx context.Context, orderID, productID, quantity int) (*models.OrderProduct, error) {
	if quantity > models.MaxLineQuantity {
		return nil, ErrQuantityOutOfRange
	}
	existing, err := r.lock(ctx, orderID, productID)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, r.Remove(ctx, orderID, productID)
	}

	existing.Quantity = quantity
	if err := r.writeQuantity(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *GormOrderProductRepository) Remove(ctx context.Context, orderID, productID int) error {
	res := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Delete(&models.OrderProduct{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormOrderProductRepository) Find(ctx context.Context, orderID, productID int) (*models.OrderProduct, error) {
	var line models.OrderProduct
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Take(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *GormOrderProductRepository) FindByOrder(ctx context.Context, orderID int) ([]models.OrderProduct, error) {
	var lines []models.OrderProduct
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_id").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindOpen lists lines whose order is not checked out yet
func (r *GormOrderProductRepository) FindOpen(ctx context.Context) ([]models.OrderProduct, error) {
	var lines []models.OrderProduct
	if err := r.db.WithContext(ctx).
		Joins(`JOIN "orders" ON "orders"."order_id" = "order_products"."order_id"`).
		Where(`"orders"."is_checked_out" = ?`, false).
		Order(`"order_products"."order_id", "order_products"."product_id"`).
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}
