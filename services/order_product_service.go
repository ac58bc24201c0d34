package services

import (
	"context"

	apperrors "sales-service/common/errors"
	"sales-service/events"
	"sales-service/models"
	"sales-service/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddOrderProductRequest adds a product to an open order.
type AddOrderProductRequest struct {
	OrderID   int             `json:"orderId" validate:"gt=0"`
	ProductID int             `json:"productId" validate:"gt=0"`
	Quantity  int             `json:"quantity" validate:"gte=1,lte=1000000"`
	UnitPrice decimal.Decimal `json:"unitPriceAtOrder" validate:"gte=0"`
}

// OrderProductService defines order line CRUD. Lines of a checked-out
// order are frozen.
type OrderProductService interface {
	AddToOrder(ctx context.Context, req AddOrderProductRequest) (*models.OrderProduct, *apperrors.Error)
	UpdateQuantity(ctx context.Context, orderID, productID, quantity int) (*models.OrderProduct, *apperrors.Error)
	Remove(ctx context.Context, orderID, productID int) *apperrors.Error
	ListByOrder(ctx context.Context, orderID int) ([]models.OrderProduct, *apperrors.Error)
	ListOpen(ctx context.Context) ([]models.OrderProduct, *apperrors.Error)
}

type orderProductServiceImpl struct {
	uow       repository.UnitOfWork
	publisher EventPublisher
	logger    *zap.Logger
}

func NewOrderProductService(uow repository.UnitOfWork, publisher EventPublisher, logger *zap.Logger) OrderProductService {
	return &orderProductServiceImpl{uow: uow, publisher: publisherOrNoop(publisher), logger: logger}
}

// lockOpenOrder must run inside a transaction.
func lockOpenOrder(ctx context.Context, tx repository.UnitOfWork, orderID int) error {
	order, err := tx.Orders().LockByID(ctx, orderID)
	if err != nil {
		return storageError(err, "order not found", "failed to load order")
	}
	if order.IsCheckedOut {
		return apperrors.Conflict("order is checked out")
	}
	return nil
}

// AddToOrder inserts the line or increments an existing one.
func (s *orderProductServiceImpl) AddToOrder(ctx context.Context, req AddOrderProductRequest) (*models.OrderProduct, *apperrors.Error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, apperrors.InvalidArgument("invalid order product").WithDetails(err.Error())
	}

	var (
		stored *models.OrderProduct
		action string
	)
	err := s.uow.Transaction(ctx, func(tx repository.UnitOfWork) error {
		if err := lockOpenOrder(ctx, tx, req.OrderID); err != nil {
			return err
		}
		before, err := tx.OrderProducts().Find(ctx, req.OrderID, req.ProductID)
		action = models.ActionUpdated
		if err != nil || before == nil {
			action = models.ActionCreated
		}
		stored, err = tx.OrderProducts().AddOrIncrement(ctx, &models.OrderProduct{
			OrderID:          req.OrderID,
			ProductID:        req.ProductID,
			Quantity:         req.Quantity,
			UnitPriceAtOrder: req.UnitPrice,
		})
		return err
	})
	if err != nil {
		return nil, storageError(err, "order not found", "failed to add product to order")
	}

	s.publish(action, stored)
	return stored, nil
}

// UpdateQuantity overwrites a line's quantity; zero or less removes it
// and returns a nil line.
func (s *orderProductServiceImpl) UpdateQuantity(ctx context.Context, orderID, productID, quantity int) (*models.OrderProduct, *apperrors.Error) {
	if quantity > models.MaxLineQuantity {
		return nil, apperrors.InvalidArgument("quantity must be between 1 and 1000000")
	}

	var stored *models.OrderProduct
	err := s.uow.Transaction(ctx, func(tx repository.UnitOfWork) error {
		if err := lockOpenOrder(ctx, tx, orderID); err != nil {
			return err
		}
		var err error
		stored, err = tx.OrderProducts().SetQuantity(ctx, orderID, productID, quantity)
		return err
	})
	if err != nil {
		return nil, storageError(err, "order product not found", "failed to update order product")
	}

	if stored == nil {
		s.publish(models.ActionDeleted, &models.OrderProduct{OrderID: orderID, ProductID: productID})
		return nil, nil
	}
	s.publish(models.ActionUpdated, stored)
	return stored, nil
}

func (s *orderProductServiceImpl) Remove(ctx context.Context, orderID, productID int) *apperrors.Error {
	err := s.uow.Transaction(ctx, func(tx repository.UnitOfWork) error {
		if err := lockOpenOrder(ctx, tx, orderID); err != nil {
			return err
		}
		return tx.OrderProducts().Remove(ctx, orderID, productID)
	})
	if err != nil {
		return storageError(err, "order product not found", "failed to remove order product")
	}
	s.publish(models.ActionDeleted, &models.OrderProduct{OrderID: orderID, ProductID: productID})
	return nil
}

func (s *orderProductServiceImpl) ListByOrder(ctx context.Context, orderID int) ([]models.OrderProduct, *apperrors.Error) {
	if _, err := s.uow.Orders().FindByID(ctx, orderID); err != nil {
		return nil, storageError(err, "order not found", "failed to load order")
	}
	lines, err := s.uow.OrderProducts().FindByOrder(ctx, orderID)
	if err != nil {
		return nil, apperrors.Internal("failed to list order products", err)
	}
	return lines, nil
}

func (s *orderProductServiceImpl) ListOpen(ctx context.Context) ([]models.OrderProduct, *apperrors.Error) {
	lines, err := s.uow.OrderProducts().FindOpen(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list open order products", err)
	}
	return lines, nil
}

func (s *orderProductServiceImpl) publish(action string, line *models.OrderProduct) {
	s.publisher.Publish(events.TopicOrderProduct, models.OrderProductUpdateMessage{
		Type:         models.MessageTypeOrderProductUpdate,
		UpdateType:   models.UpdateTypeSingle,
		Action:       action,
		OrderProduct: line,
	})
}
