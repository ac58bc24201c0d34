package controllers

import (
	"net/http"

	apperrors "sales-service/common/errors"
	"sales-service/models"
	"sales-service/services"

	"github.com/gin-gonic/gin"
)

// OrderController handles HTTP requests for orders and their lines.
type OrderController struct {
	orderService        services.OrderService
	orderProductService services.OrderProductService
}

func NewOrderController(orders services.OrderService, lines services.OrderProductService) *OrderController {
	return &OrderController{orderService: orders, orderProductService: lines}
}

// Create handles POST /api/orders
func (oc *OrderController) Create(ctx *gin.Context) {
	var req services.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}
	order, svcErr := oc.orderService.Create(ctx.Request.Context(), req)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, order)
}

// List handles GET /api/orders; ?open=true lists orders not checked out.
func (oc *OrderController) List(ctx *gin.Context) {
	var (
		orders []models.Order
		svcErr *apperrors.Error
	)
	if ctx.Query("open") == "true" {
		orders, svcErr = oc.orderService.ListOpen(ctx.Request.Context())
	} else {
		orders, svcErr = oc.orderService.List(ctx.Request.Context())
	}
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, orders)
}

// Get handles GET /api/orders/:id
func (oc *OrderController) Get(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	order, svcErr := oc.orderService.Get(ctx.Request.Context(), id)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// Checkout handles POST /api/orders/:id/checkout
func (oc *OrderController) Checkout(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	order, svcErr := oc.orderService.Checkout(ctx.Request.Context(), id)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// Delete handles DELETE /api/orders/:id
func (oc *OrderController) Delete(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	if svcErr := oc.orderService.Delete(ctx.Request.Context(), id); svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// AddProduct handles POST /api/orders/:id/products
func (oc *OrderController) AddProduct(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	var req services.AddOrderProductRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}
	req.OrderID = id
	line, svcErr := oc.orderProductService.AddToOrder(ctx.Request.Context(), req)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, line)
}

// ListProducts handles GET /api/orders/:id/products
func (oc *OrderController) ListProducts(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	lines, svcErr := oc.orderProductService.ListByOrder(ctx.Request.Context(), id)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, lines)
}

type quantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// UpdateProduct handles PUT /api/orders/:id/products/:productId.
// A quantity of zero or less removes the line.
func (oc *OrderController) UpdateProduct(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	productID, ok := intParam(ctx, "productId")
	if !ok {
		return
	}
	var req quantityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}
	line, svcErr := oc.orderProductService.UpdateQuantity(ctx.Request.Context(), id, productID, *req.Quantity)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	if line == nil {
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, line)
}

// RemoveProduct handles DELETE /api/orders/:id/products/:productId
func (oc *OrderController) RemoveProduct(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	productID, ok := intParam(ctx, "productId")
	if !ok {
		return
	}
	if svcErr := oc.orderProductService.Remove(ctx.Request.Context(), id, productID); svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ListOpenProducts handles GET /api/orderProducts
func (oc *OrderController) ListOpenProducts(ctx *gin.Context) {
	lines, svcErr := oc.orderProductService.ListOpen(ctx.Request.Context())
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	if lines == nil {
		lines = []models.OrderProduct{}
	}
	ctx.JSON(http.StatusOK, lines)
}
