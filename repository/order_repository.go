package repository

import (
	"context"

	"sales-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id int) (*models.Order, error)
	FindAll(ctx context.Context) ([]models.Order, error)
	FindOpen(ctx context.Context) ([]models.Order, error)
	LockByID(ctx context.Context, id int) (*models.Order, error)
	MarkCheckedOut(ctx context.Context, id int) (bool, error)
	Delete(ctx context.Context, id int) error
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new instance of GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts the order header only; lines go through
// OrderProductRepository so the increment rule applies to them.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

// FindByID loads an order with its lines
func (r *GormOrderRepository) FindByID(ctx context.Context, id int) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("OrderProducts", func(db *gorm.DB) *gorm.DB { return db.Order("product_id") }).
		Where("order_id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindAll(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Preload("OrderProducts").
		Order("order_id").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindOpen lists orders that have not been checked out
func (r *GormOrderRepository) FindOpen(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Preload("OrderProducts").
		Where("is_checked_out = ?", false).
		Order("order_id").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// LockByID reads the order header FOR UPDATE. Only meaningful inside a
// transaction.
func (r *GormOrderRepository) LockByID(ctx context.Context, id int) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", id).
		Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkCheckedOut flips is_checked_out false->true. It reports false when no
// open order with that id exists.
func (r *GormOrderRepository) MarkCheckedOut(ctx context.Context, id int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND is_checked_out = ?", id, false).
		UpdateColumn("is_checked_out", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete removes the order; order_products rows go with it (ON DELETE CASCADE).
func (r *GormOrderRepository) Delete(ctx context.Context, id int) error {
	res := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
