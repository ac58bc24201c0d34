package repository

import (
	"context"

	"sales-service/models"

	"gorm.io/gorm"
)

// CustomerRepository defines data access for customers
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, id int) (*models.Customer, error)
	FindAll(ctx context.Context) ([]models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	Delete(ctx context.Context, id int) error
}

type GormCustomerRepository struct {
	db *gorm.DB
}

func NewGormCustomerRepository(db *gorm.DB) CustomerRepository {
	return &GormCustomerRepository{db: db}
}

func (r *GormCustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Omit("Orders").Create(customer).Error
}

func (r *GormCustomerRepository) FindByID(ctx context.Context, id int) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("customer_id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *GormCustomerRepository) FindAll(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := r.db.WithContext(ctx).Order("customer_id").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

// Update overwrites name and contact number. Missing rows surface as
// gorm.ErrRecordNotFound.
func (r *GormCustomerRepository) Update(ctx context.Context, customer *models.Customer) error {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("customer_id = ?", customer.CustomerID).
		Updates(map[string]interface{}{
			"name":           customer.Name,
			"contact_number": customer.ContactNumber,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormCustomerRepository) Delete(ctx context.Context, id int) error {
	res := r.db.WithContext(ctx).Where("customer_id = ?", id).Delete(&models.Customer{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
