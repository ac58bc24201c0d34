package controllers

import (
	"net/http"

	"sales-service/services"

	"github.com/gin-gonic/gin"
)

// CustomerController handles HTTP requests for customers.
type CustomerController struct {
	customerService services.CustomerService
}

func NewCustomerController(svc services.CustomerService) *CustomerController {
	return &CustomerController{customerService: svc}
}

// Create handles POST /api/customers
func (cc *CustomerController) Create(ctx *gin.Context) {
	var req services.CustomerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}
	customer, svcErr := cc.customerService.Create(ctx.Request.Context(), req)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, customer)
}

// List handles GET /api/customers
func (cc *CustomerController) List(ctx *gin.Context) {
	customers, svcErr := cc.customerService.List(ctx.Request.Context())
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, customers)
}

// Get handles GET /api/customers/:id
func (cc *CustomerController) Get(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	customer, svcErr := cc.customerService.Get(ctx.Request.Context(), id)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, customer)
}

// Update handles PUT /api/customers/:id
func (cc *CustomerController) Update(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	var req services.CustomerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}
	customer, svcErr := cc.customerService.Update(ctx.Request.Context(), id, req)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, customer)
}

// Delete handles DELETE /api/customers/:id
func (cc *CustomerController) Delete(ctx *gin.Context) {
	id, ok := intParam(ctx, "id")
	if !ok {
		return
	}
	if svcErr := cc.customerService.Delete(ctx.Request.Context(), id); svcErr != nil {
		fail(ctx, svcErr)
		return
	}
	ctx.Status(http.StatusNoContent)
}
