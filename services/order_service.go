package services

import (
	"context"
	"time"

	apperrors "sales-service/common/errors"
	"sales-service/events"
	"sales-service/models"
	awspkg "sales-service/pkg/aws"
	"sales-service/repository"

	"go.uber.org/zap"
)

// CreateOrderRequest opens an empty order outside the sale flow.
type CreateOrderRequest struct {
	CustomerID int        `json:"customerId" binding:"required"`
	OrderDate  *time.Time `json:"orderDate"`
}

// OrderService defines order CRUD and checkout.
type OrderService interface {
	Create(ctx context.Context, req CreateOrderRequest) (*models.Order, *apperrors.Error)
	Get(ctx context.Context, id int) (*models.Order, *apperrors.Error)
	List(ctx context.Context) ([]models.Order, *apperrors.Error)
	ListOpen(ctx context.Context) ([]models.Order, *apperrors.Error)
	Checkout(ctx context.Context, id int) (*models.Order, *apperrors.Error)
	Delete(ctx context.Context, id int) *apperrors.Error
}

type orderServiceImpl struct {
	uow       repository.UnitOfWork
	publisher EventPublisher
	metrics   MetricsRecorder
	logger    *zap.Logger
}

func NewOrderService(uow repository.UnitOfWork, publisher EventPublisher, metrics MetricsRecorder, logger *zap.Logger) OrderService {
	return &orderServiceImpl{
		uow:       uow,
		publisher: publisherOrNoop(publisher),
		metrics:   metricsOrNoop(metrics),
		logger:    logger,
	}
}

func (s *orderServiceImpl) Create(ctx context.Context, req CreateOrderRequest) (*models.Order, *apperrors.Error) {
	if _, err := s.uow.Customers().FindByID(ctx, req.CustomerID); err != nil {
		return nil, storageError(err, "customer not found", "failed to load customer")
	}

	order := &models.Order{CustomerID: req.CustomerID, OrderDate: time.Now().UTC()}
	if req.OrderDate != nil {
		order.OrderDate = req.OrderDate.UTC()
	}
	if err := s.uow.Orders().Create(ctx, order); err != nil {
		s.logger.Error("Failed to create order", zap.Int("customer_id", req.CustomerID), zap.Error(err))
		return nil, storageError(err, "customer not found", "failed to create order")
	}
	order.OrderProducts = []models.OrderProduct{}

	s.publishSingle(models.ActionCreated, order)
	return order, nil
}

func (s *orderServiceImpl) Get(ctx context.Context, id int) (*models.Order, *apperrors.Error) {
	order, err := s.uow.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "order not found", "failed to load order")
	}
	return order, nil
}

func (s *orderServiceImpl) List(ctx context.Context) ([]models.Order, *apperrors.Error) {
	orders, err := s.uow.Orders().FindAll(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list orders", err)
	}
	return orders, nil
}

func (s *orderServiceImpl) ListOpen(ctx context.Context) ([]models.Order, *apperrors.Error) {
	orders, err := s.uow.Orders().FindOpen(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to list open orders", err)
	}
	return orders, nil
}

// Checkout flips IsCheckedOut once. It has no stock side effects.
func (s *orderServiceImpl) Checkout(ctx context.Context, id int) (*models.Order, *apperrors.Error) {
	flipped, err := s.uow.Orders().MarkCheckedOut(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("failed to check out order", err)
	}

	order, err := s.uow.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "order not found", "failed to load order")
	}
	if !flipped {
		return nil, apperrors.Conflict("order already checked out")
	}

	s.logger.Info("Order checked out", zap.Int("order_id", id))
	if err := s.metrics.RecordCount(context.WithoutCancel(ctx), awspkg.MetricOrdersCheckedOut, map[string]string{"Service": "sales"}); err != nil {
		s.logger.Debug("Metric not recorded", zap.Error(err))
	}
	s.publishSingle(models.ActionUpdated, order)
	return order, nil
}

// Delete removes the order and its lines, then publishes the remaining
// orders so subscribers can resync.
func (s *orderServiceImpl) Delete(ctx context.Context, id int) *apperrors.Error {
	if err := s.uow.Orders().Delete(ctx, id); err != nil {
		return storageError(err, "order not found", "failed to delete order")
	}
	s.logger.Info("Order deleted", zap.Int("order_id", id))
	s.publishSingle(models.ActionDeleted, &models.Order{OrderID: id})

	orders, err := s.uow.Orders().FindAll(ctx)
	if err != nil {
		s.logger.Warn("Skipping order resync after delete", zap.Error(err))
		return nil
	}
	if orders == nil {
		orders = []models.Order{}
	}
	s.publisher.Publish(events.TopicOrder, models.OrderUpdateMessage{
		Type:       models.MessageTypeOrderUpdate,
		UpdateType: models.UpdateTypeGlobal,
		Orders:     orders,
	})
	return nil
}

func (s *orderServiceImpl) publishSingle(action string, order *models.Order) {
	s.publisher.Publish(events.TopicOrder, models.OrderUpdateMessage{
		Type:       models.MessageTypeOrderUpdate,
		UpdateType: models.UpdateTypeSingle,
		Action:     action,
		Order:      order,
	})
}
