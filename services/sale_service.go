package services

import (
	"context"
	"fmt"
	"reflect"
	"time"

	apperrors "sales-service/common/errors"
	"sales-service/events"
	"sales-service/inventory"
	"sales-service/models"
	awspkg "sales-service/pkg/aws"
	"sales-service/repository"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleLine is one requested product of a sale.
type SaleLine struct {
	ProductID int             `json:"productId" validate:"gt=0"`
	Quantity  int             `json:"quantity" validate:"gte=1,lte=1000000"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

// CreateSaleRequest is the input of CreateSale.
type CreateSaleRequest struct {
	CustomerID int        `json:"customerId"`
	Lines      []SaleLine `json:"products"`
}

// StockShortage describes one product the cache cannot cover.
type StockShortage struct {
	ProductID int `json:"productId"`
	Requested int `json:"requested"`
	Available int `json:"available"`
}

// LineViolation is one failed validation rule on a request line.
type LineViolation struct {
	Line  int    `json:"line"`
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// DecrementFailure is attached to an UpstreamWarning.
type DecrementFailure struct {
	ProductID int    `json:"productId"`
	Quantity  int    `json:"quantity"`
	Queued    bool   `json:"queued"`
	Reason    string `json:"reason"`
}

// SaleResult is a committed sale. Warnings are set when one or more stock
// decrements could not be confirmed; the order stays created regardless.
type SaleResult struct {
	Order    *models.Order      `json:"order"`
	Warnings []*apperrors.Error `json:"warnings,omitempty"`
}

// SaleService creates sales against the local store and the Inventory Service.
type SaleService interface {
	CreateSale(ctx context.Context, req CreateSaleRequest) (*SaleResult, *apperrors.Error)
}

// SaleOption customises a SaleService.
type SaleOption func(*saleServiceImpl)

// WithReconcileQueue enables queueing of undelivered decrements.
func WithReconcileQueue(q repository.ReconcileQueue) SaleOption {
	return func(s *saleServiceImpl) { s.queue = q }
}

// WithMetrics records business counters.
func WithMetrics(m MetricsRecorder) SaleOption {
	return func(s *saleServiceImpl) { s.metrics = metricsOrNoop(m) }
}

// WithCommandTimeout bounds each post-commit decrement.
func WithCommandTimeout(d time.Duration) SaleOption {
	return func(s *saleServiceImpl) {
		if d > 0 {
			s.commandTimeout = d
		}
	}
}

// WithClock replaces time.Now for order dates.
func WithClock(now func() time.Time) SaleOption {
	return func(s *saleServiceImpl) { s.now = now }
}

type saleServiceImpl struct {
	uow            repository.UnitOfWork
	stock          StockReader
	commander      StockCommander
	publisher      EventPublisher
	queue          repository.ReconcileQueue
	metrics        MetricsRecorder
	commandTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewSaleService creates a new SaleService.
func NewSaleService(
	uow repository.UnitOfWork,
	stock StockReader,
	commander StockCommander,
	publisher EventPublisher,
	logger *zap.Logger,
	opts ...SaleOption,
) SaleService {
	s := &saleServiceImpl{
		uow:            uow,
		stock:          stock,
		commander:      commander,
		publisher:      publisherOrNoop(publisher),
		metrics:        noopMetrics{},
		commandTimeout: 15 * time.Second,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requestValidator compares decimals as float64.
var requestValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// CreateSale validates, checks cached stock, commits the order and its
// lines in one transaction, then asks the Inventory Service to take the
// stock. Decrement failures after commit are returned as warnings.
func (s *saleServiceImpl) CreateSale(ctx context.Context, req CreateSaleRequest) (*SaleResult, *apperrors.Error) {
	if _, err := s.uow.Customers().FindByID(ctx, req.CustomerID); err != nil {
		return nil, storageError(err, "customer not found", "failed to load customer")
	}
	if len(req.Lines) == 0 {
		return nil, apperrors.InvalidArgument("sale has no lines")
	}
	if violations := s.validateLines(req.Lines); len(violations) > 0 {
		return nil, apperrors.InvalidArgument("invalid sale lines").WithDetails(violations)
	}

	// repeated products are merged into one stored line
	if violations := mergedLimitViolations(req.Lines); len(violations) > 0 {
		return nil, apperrors.InvalidArgument("invalid sale lines").WithDetails(violations)
	}

	products, requested := sumQuantities(req.Lines)
	if shortages := s.checkStock(products, requested); len(shortages) > 0 {
		s.count(ctx, awspkg.MetricSaleRejected)
		s.logger.Info("Sale rejected, insufficient stock",
			zap.Int("customer_id", req.CustomerID),
			zap.Int("shortages", len(shortages)),
		)
		return nil, apperrors.Conflict("insufficient stock").WithDetails(shortages)
	}

	var order *models.Order
	err := s.uow.Transaction(ctx, func(tx repository.UnitOfWork) error {
		created := &models.Order{CustomerID: req.CustomerID, OrderDate: s.now().UTC()}
		if err := tx.Orders().Create(ctx, created); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, line := range req.Lines {
			if _, err := tx.OrderProducts().AddOrIncrement(ctx, &models.OrderProduct{
				OrderID:          created.OrderID,
				ProductID:        line.ProductID,
				Quantity:         line.Quantity,
				UnitPriceAtOrder: line.UnitPrice,
			}); err != nil {
				return fmt.Errorf("add product %d: %w", line.ProductID, err)
			}
		}
		loaded, err := tx.Orders().FindByID(ctx, created.OrderID)
		if err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		order = loaded
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to store sale", zap.Int("customer_id", req.CustomerID), zap.Error(err))
		return nil, apperrors.Internal("failed to store sale", err)
	}

	s.logger.Info("Sale committed",
		zap.Int("order_id", order.OrderID),
		zap.Int("customer_id", order.CustomerID),
		zap.String("total", order.Total().StringFixed(2)),
	)

	result := &SaleResult{Order: order, Warnings: s.takeStock(ctx, req.Lines)}

	s.publisher.Publish(events.TopicOrder, models.OrderUpdateMessage{
		Type:       models.MessageTypeOrderUpdate,
		UpdateType: models.UpdateTypeSingle,
		Action:     models.ActionCreated,
		Order:      order,
	})
	for i := range order.OrderProducts {
		line := order.OrderProducts[i]
		s.publisher.Publish(events.TopicOrderProduct, models.OrderProductUpdateMessage{
			Type:         models.MessageTypeOrderProductUpdate,
			UpdateType:   models.UpdateTypeSingle,
			Action:       models.ActionCreated,
			OrderProduct: &line,
		})
	}
	s.count(ctx, awspkg.MetricOrdersCreated)

	return result, nil
}

func (s *saleServiceImpl) validateLines(lines []SaleLine) []LineViolation {
	var violations []LineViolation
	for i, line := range lines {
		err := requestValidator.Struct(line)
		if err == nil {
			continue
		}
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			violations = append(violations, LineViolation{Line: i, Rule: err.Error()})
			continue
		}
		for _, fe := range fieldErrs {
			violations = append(violations, LineViolation{Line: i, Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	return violations
}

// mergedLimitViolations flags the line at which a product's running total
// first exceeds MaxLineQuantity.
func mergedLimitViolations(lines []SaleLine) []LineViolation {
	running := make(map[int]int, len(lines))
	var violations []LineViolation
	for i, line := range lines {
		before := running[line.ProductID]
		running[line.ProductID] = before + line.Quantity
		if before <= models.MaxLineQuantity && running[line.ProductID] > models.MaxLineQuantity {
			violations = append(violations, LineViolation{Line: i, Field: "Quantity", Rule: "lte"})
		}
	}
	return violations
}

// sumQuantities merges repeated products, keeping first-seen order. Each
// line is already bounded by MaxLineQuantity, so the sums cannot overflow.
func sumQuantities(lines []SaleLine) ([]int, map[int]int) {
	requested := make(map[int]int, len(lines))
	var order []int
	for _, line := range lines {
		if _, seen := requested[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}
	return order, requested
}

func (s *saleServiceImpl) checkStock(products []int, requested map[int]int) []StockShortage {
	var shortages []StockShortage
	for _, productID := range products {
		available := s.stock.AvailableStock(productID)
		if requested[productID] > available {
			shortages = append(shortages, StockShortage{
				ProductID: productID,
				Requested: requested[productID],
				Available: available,
			})
		}
	}
	return shortages
}

// takeStock sends one takeProduct per request line. The caller's
// cancellation does not apply: the order is already committed.
func (s *saleServiceImpl) takeStock(ctx context.Context, lines []SaleLine) []*apperrors.Error {
	base := context.WithoutCancel(ctx)
	var warnings []*apperrors.Error
	for _, line := range lines {
		cmdCtx, cancel := context.WithTimeout(base, s.commandTimeout)
		err := s.commander.SendCommand(cmdCtx, line.ProductID, line.Quantity, models.ActionTakeProduct)
		cancel()
		if err == nil {
			continue
		}

		failure := DecrementFailure{ProductID: line.ProductID, Quantity: line.Quantity, Reason: err.Error()}
		if s.queue != nil && inventory.IsUndelivered(err) {
			cmd := models.StockCommand{ProductID: line.ProductID, Quantity: line.Quantity, Action: models.ActionTakeProduct}
			if qerr := s.queue.Push(base, cmd); qerr != nil {
				s.logger.Error("Failed to queue stock decrement", zap.Int("product_id", line.ProductID), zap.Error(qerr))
			} else {
				failure.Queued = true
			}
		}

		s.logger.Warn("Stock decrement failed after commit",
			zap.Int("product_id", line.ProductID),
			zap.Int("quantity", line.Quantity),
			zap.Bool("queued", failure.Queued),
			zap.Error(err),
		)
		s.count(ctx, awspkg.MetricInventoryDecrementFailed)
		warnings = append(warnings, apperrors.UpstreamWarning("stock decrement failed", err).WithDetails(failure))
	}
	return warnings
}

func (s *saleServiceImpl) count(ctx context.Context, metric string) {
	if err := s.metrics.RecordCount(context.WithoutCancel(ctx), metric, map[string]string{"Service": "sales"}); err != nil {
		s.logger.Debug("Metric not recorded", zap.String("metric", metric), zap.Error(err))
	}
}
