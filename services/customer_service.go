package services

import (
	"context"
	"errors"
	"strings"

	apperrors "sales-service/common/errors"
	"sales-service/events"
	"sales-service/models"
	"sales-service/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CustomerRequest is the writable part of a customer.
type CustomerRequest struct {
	Name          string `json:"name" binding:"required"`
	ContactNumber string `json:"contactNumber"`
}

// CustomerService defines customer CRUD.
type CustomerService interface {
	Create(ctx context.Context, req CustomerRequest) (*models.Customer, *apperrors.Error)
	Get(ctx context.Context, id int) (*models.Customer, *apperrors.Error)
	List(ctx context.Context) ([]models.Customer, *apperrors.Error)
	Update(ctx context.Context, id int, req CustomerRequest) (*models.Customer, *apperrors.Error)
	Delete(ctx context.Context, id int) *apperrors.Error
}

type customerServiceImpl struct {
	uow       repository.UnitOfWork
	publisher EventPublisher
	logger    *zap.Logger
}

func NewCustomerService(uow repository.UnitOfWork, publisher EventPublisher, logger *zap.Logger) CustomerService {
	return &customerServiceImpl{uow: uow, publisher: publisherOrNoop(publisher), logger: logger}
}

func (s *customerServiceImpl) Create(ctx context.Context, req CustomerRequest) (*models.Customer, *apperrors.Error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.InvalidArgument("name is required")
	}
	customer := &models.Customer{Name: name, ContactNumber: strings.TrimSpace(req.ContactNumber)}
	if err := s.uow.Customers().Create(ctx, customer); err != nil {
		s.logger.Error("Failed to create customer", zap.Error(err))
		return nil, storageError(err, "customer not found", "failed to create customer")
	}
	s.publish(models.ActionCreated, customer)
	return customer, nil
}

func (s *customerServiceImpl) Get(ctx context.Context, id int) (*models.Customer, *apperrors.Error) {
	customer, err := s.uow.Customers().FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "customer not found", "failed to load customer")
	}
	return customer, nil
}

func (s *customerServiceImpl) List(ctx context.Context) ([]models.Customer, *apperrors.Error) {
	customers, err := s.uow.Customers().FindAll(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list customers", err)
	}
	return customers, nil
}

func (s *customerServiceImpl) Update(ctx context.Context, id int, req CustomerRequest) (*models.Customer, *apperrors.Error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.InvalidArgument("name is required")
	}
	customer := &models.Customer{CustomerID: id, Name: name, ContactNumber: strings.TrimSpace(req.ContactNumber)}
	if err := s.uow.Customers().Update(ctx, customer); err != nil {
		return nil, storageError(err, "customer not found", "failed to update customer")
	}
	s.publish(models.ActionUpdated, customer)
	return customer, nil
}

// Delete refuses customers that still have orders.
func (s *customerServiceImpl) Delete(ctx context.Context, id int) *apperrors.Error {
	err := s.uow.Customers().Delete(ctx, id)
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return apperrors.Conflict("customer has orders")
	}
	if err != nil {
		return storageError(err, "customer not found", "failed to delete customer")
	}
	s.logger.Info("Customer deleted", zap.Int("customer_id", id))
	s.publish(models.ActionDeleted, &models.Customer{CustomerID: id})
	return nil
}

func (s *customerServiceImpl) publish(action string, customer *models.Customer) {
	s.publisher.Publish(events.TopicCustomer, models.CustomerUpdateMessage{
		Type:       models.MessageTypeCustomerUpdate,
		UpdateType: models.UpdateTypeSingle,
		Action:     action,
		Customer:   customer,
	})
}
