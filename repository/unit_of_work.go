package repository

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork groups the sales repositories behind one transaction boundary.
// Repositories returned from the tx passed to fn share that transaction.
type UnitOfWork interface {
	Customers() CustomerRepository
	Orders() OrderRepository
	OrderProducts() OrderProductRepository
	Transaction(ctx context.Context, fn func(tx UnitOfWork) error) error
}

type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Customers() CustomerRepository {
	return NewGormCustomerRepository(u.db)
}

func (u *GormUnitOfWork) Orders() OrderRepository {
	return NewGormOrderRepository(u.db)
}

func (u *GormUnitOfWork) OrderProducts() OrderProductRepository {
	return NewGormOrderProductRepository(u.db)
}

// Transaction commits when fn returns nil and rolls back otherwise.
func (u *GormUnitOfWork) Transaction(ctx context.Context, fn func(tx UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormUnitOfWork(tx))
	})
}
