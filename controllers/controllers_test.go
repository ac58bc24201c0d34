package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "sales-service/common/errors"
	"sales-service/controllers"
	"sales-service/inventory"
	"sales-service/models"
	"sales-service/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- mocks ----

type mockSaleSvc struct {
	got    services.CreateSaleRequest
	result *services.SaleResult
	err    *apperrors.Error
}

func (m *mockSaleSvc) CreateSale(_ context.Context, req services.CreateSaleRequest) (*services.SaleResult, *apperrors.Error) {
	m.got = req
	return m.result, m.err
}

type mockCustomerSvc struct {
	services.CustomerService
	deleteErr *apperrors.Error
	getErr    *apperrors.Error
}

func (m *mockCustomerSvc) Get(_ context.Context, id int) (*models.Customer, *apperrors.Error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.Customer{CustomerID: id, Name: "Ada"}, nil
}

func (m *mockCustomerSvc) Delete(_ context.Context, _ int) *apperrors.Error { return m.deleteErr }

type mockOrderSvc struct {
	services.OrderService
	openCalled bool
	checkout   *apperrors.Error
}

func (m *mockOrderSvc) List(_ context.Context) ([]models.Order, *apperrors.Error) {
	return []models.Order{{OrderID: 1}, {OrderID: 2, IsCheckedOut: true}}, nil
}

func (m *mockOrderSvc) ListOpen(_ context.Context) ([]models.Order, *apperrors.Error) {
	m.openCalled = true
	return []models.Order{{OrderID: 1}}, nil
}

func (m *mockOrderSvc) Checkout(_ context.Context, id int) (*models.Order, *apperrors.Error) {
	if m.checkout != nil {
		return nil, m.checkout
	}
	return &models.Order{OrderID: id, IsCheckedOut: true}, nil
}

type mockLineSvc struct {
	services.OrderProductService
	added   services.AddOrderProductRequest
	updated [3]int
}

func (m *mockLineSvc) AddToOrder(_ context.Context, req services.AddOrderProductRequest) (*models.OrderProduct, *apperrors.Error) {
	m.added = req
	line := &models.OrderProduct{OrderID: req.OrderID, ProductID: req.ProductID, Quantity: req.Quantity, UnitPriceAtOrder: req.UnitPrice}
	line.RecomputeTotal()
	return line, nil
}

func (m *mockLineSvc) UpdateQuantity(_ context.Context, orderID, productID, quantity int) (*models.OrderProduct, *apperrors.Error) {
	m.updated = [3]int{orderID, productID, quantity}
	if quantity <= 0 {
		return nil, nil
	}
	return &models.OrderProduct{OrderID: orderID, ProductID: productID, Quantity: quantity}, nil
}

func (m *mockLineSvc) ListOpen(_ context.Context) ([]models.OrderProduct, *apperrors.Error) {
	return nil, nil
}

type fixedSnapshot []models.ProductStatus

func (f fixedSnapshot) Snapshot() ([]models.ProductStatus, bool) { return f, len(f) > 0 }

type fixedState inventory.State

func (f fixedState) State() inventory.State { return inventory.State(f) }

type fixedCount int

func (f fixedCount) Count() int { return int(f) }

type fixedQueue int64

func (f fixedQueue) Len(context.Context) (int64, error) { return int64(f), nil }

// ---- helpers ----

func setupRouter(register func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	register(r)
	return r
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// ---- sales ----

func TestCreateSale_Created(t *testing.T) {
	order := &models.Order{OrderID: 7, CustomerID: 1, OrderProducts: []models.OrderProduct{{
		OrderID: 7, ProductID: 5, Quantity: 2,
		UnitPriceAtOrder: decimal.RequireFromString("10.00"), TotalPriceAtOrder: decimal.RequireFromString("20.00"),
	}}}
	svc := &mockSaleSvc{result: &services.SaleResult{Order: order}}
	r := setupRouter(func(r *gin.Engine) { r.POST("/api/sales", controllers.NewSaleController(svc).CreateSale) })

	w := do(r, http.MethodPost, "/api/sales",
		`{"customerId":1,"products":[{"productId":5,"quantity":2,"unitPrice":10.00}]}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, svc.got.CustomerID)
	require.Len(t, svc.got.Lines, 1)
	assert.True(t, decimal.RequireFromString("10").Equal(svc.got.Lines[0].UnitPrice))

	body := decode(t, w)
	assert.NotContains(t, body, "warnings")
	lines := body["order"].(map[string]interface{})["orderProducts"].([]interface{})
	assert.Equal(t, 20.0, lines[0].(map[string]interface{})["totalPriceAtOrder"])
}

func TestCreateSale_WarningsAreReturned(t *testing.T) {
	warning := apperrors.UpstreamWarning("stock decrement failed", nil).
		WithDetails(services.DecrementFailure{ProductID: 5, Quantity: 2, Queued: true, Reason: "not connected"})
	svc := &mockSaleSvc{result: &services.SaleResult{Order: &models.Order{OrderID: 1}, Warnings: []*apperrors.Error{warning}}}
	r := setupRouter(func(r *gin.Engine) { r.POST("/api/sales", controllers.NewSaleController(svc).CreateSale) })

	w := do(r, http.MethodPost, "/api/sales", `{"customerId":1,"products":[{"productId":5,"quantity":2,"unitPrice":1}]}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	warnings := decode(t, w)["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	first := warnings[0].(map[string]interface{})
	assert.Equal(t, string(apperrors.KindUpstreamWarning), first["kind"])
	assert.Equal(t, true, first["details"].(map[string]interface{})["queued"])
}

func TestCreateSale_ConflictRendersDetails(t *testing.T) {
	svc := &mockSaleSvc{err: apperrors.Conflict("insufficient stock").
		WithDetails([]services.StockShortage{{ProductID: 5, Requested: 5, Available: 3}})}
	r := setupRouter(func(r *gin.Engine) { r.POST("/api/sales", controllers.NewSaleController(svc).CreateSale) })

	w := do(r, http.MethodPost, "/api/sales", `{"customerId":1,"products":[{"productId":5,"quantity":5,"unitPrice":10}]}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "conflict", body["kind"])
	assert.Equal(t, "insufficient stock", body["message"])
	details := body["details"].([]interface{})
	assert.Equal(t, 3.0, details[0].(map[string]interface{})["available"])
}

func TestCreateSale_MalformedBody(t *testing.T) {
	svc := &mockSaleSvc{}
	r := setupRouter(func(r *gin.Engine) { r.POST("/api/sales", controllers.NewSaleController(svc).CreateSale) })

	w := do(r, http.MethodPost, "/api/sales", `{"customerId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_argument", decode(t, w)["kind"])
}

// ---- customers ----

func TestCustomer_GetAndDelete(t *testing.T) {
	svc := &mockCustomerSvc{deleteErr: apperrors.Conflict("customer has orders")}
	cc := controllers.NewCustomerController(svc)
	r := setupRouter(func(r *gin.Engine) {
		r.GET("/api/customers/:id", cc.Get)
		r.DELETE("/api/customers/:id", cc.Delete)
	})

	w := do(r, http.MethodGet, "/api/customers/3", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, decode(t, w)["customerId"])

	w = do(r, http.MethodGet, "/api/customers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/api/customers/3", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	svc.deleteErr = nil
	w = do(r, http.MethodDelete, "/api/customers/3", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCustomer_NotFound(t *testing.T) {
	svc := &mockCustomerSvc{getErr: apperrors.NotFound("customer not found")}
	cc := controllers.NewCustomerController(svc)
	r := setupRouter(func(r *gin.Engine) { r.GET("/api/customers/:id", cc.Get) })

	w := do(r, http.MethodGet, "/api/customers/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "customer not found", decode(t, w)["message"])
}

// ---- orders ----

func TestOrders_ListAndCheckout(t *testing.T) {
	orders := &mockOrderSvc{}
	oc := controllers.NewOrderController(orders, &mockLineSvc{})
	r := setupRouter(func(r *gin.Engine) {
		r.GET("/api/orders", oc.List)
		r.POST("/api/orders/:id/checkout", oc.Checkout)
	})

	w := do(r, http.MethodGet, "/api/orders?open=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, orders.openCalled)

	w = do(r, http.MethodPost, "/api/orders/4/checkout", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["isCheckedOut"])

	orders.checkout = apperrors.Conflict("order already checked out")
	w = do(r, http.MethodPost, "/api/orders/4/checkout", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOrders_ProductRoutes(t *testing.T) {
	lines := &mockLineSvc{}
	oc := controllers.NewOrderController(&mockOrderSvc{}, lines)
	r := setupRouter(func(r *gin.Engine) {
		r.POST("/api/orders/:id/products", oc.AddProduct)
		r.PUT("/api/orders/:id/products/:productId", oc.UpdateProduct)
		r.GET("/api/orderProducts", oc.ListOpenProducts)
	})

	w := do(r, http.MethodPost, "/api/orders/4/products", `{"productId":5,"quantity":2,"unitPriceAtOrder":10}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 4, lines.added.OrderID)
	assert.Equal(t, 20.0, decode(t, w)["totalPriceAtOrder"])

	w = do(r, http.MethodPut, "/api/orders/4/products/5", `{"quantity":3}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [3]int{4, 5, 3}, lines.updated)

	w = do(r, http.MethodPut, "/api/orders/4/products/5", `{"quantity":0}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodPut, "/api/orders/4/products/5", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/orderProducts", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

// ---- inventory & health ----

func TestInventoryAndHealth(t *testing.T) {
	stock := fixedSnapshot{{ProductID: 5, Name: "Tea", StockQuantity: 3, IsAvailable: true, Price: decimal.RequireFromString("10.00")}}
	ic := controllers.NewInventoryController(stock, fixedState(inventory.StateConnected), fixedCount(2), fixedQueue(4))
	r := setupRouter(func(r *gin.Engine) {
		r.GET("/api/inventory", ic.Inventory)
		r.GET("/health", ic.Health)
	})

	w := do(r, http.MethodGet, "/api/inventory", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["synced"])
	products := body["products"].([]interface{})
	require.Len(t, products, 1)
	assert.Equal(t, 10.0, products[0].(map[string]interface{})["price"])

	w = do(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "connected", body["inventoryService"])
	assert.Equal(t, 2.0, body["subscribers"])
	assert.Equal(t, 4.0, body["pendingDecrements"])
}

func TestHealth_DisconnectedStaysUp(t *testing.T) {
	ic := controllers.NewInventoryController(fixedSnapshot{}, fixedState(inventory.StateDisconnected), fixedCount(0), nil)
	r := setupRouter(func(r *gin.Engine) { r.GET("/health", ic.Health) })

	w := do(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "disconnected", body["inventoryService"])
	assert.NotContains(t, body, "pendingDecrements")
}
