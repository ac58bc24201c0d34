package services

import (
	"context"
	"errors"
	"net/http"

	apperrors "sales-service/common/errors"
	"sales-service/repository"

	"gorm.io/gorm"
)

// StockReader is the read side of the stock cache.
type StockReader interface {
	AvailableStock(productID int) int
}

// StockCommander sends stock commands to the Inventory Service.
type StockCommander interface {
	SendCommand(ctx context.Context, productID, quantity int, action string) error
}

// EventPublisher is satisfied by the events broadcaster.
type EventPublisher interface {
	Publish(topic string, payload interface{})
}

// MetricsRecorder is satisfied by the CloudWatch metrics client.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

type noopMetrics struct{}

func (noopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// storageError maps a repository error onto the service error kinds.
func storageError(err error, notFound, internal string) *apperrors.Error {
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(notFound)
	case errors.Is(err, repository.ErrQuantityOutOfRange):
		return apperrors.InvalidArgument("quantity must be between 1 and 1000000")
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.New(http.StatusConflict, apperrors.KindConflict, internal, err)
	default:
		return apperrors.Internal(internal, err)
	}
}
