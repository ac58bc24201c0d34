package controllers

import (
	"net/http"

	"sales-service/common/logger"
	"sales-service/common/middleware"
	"sales-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SaleController handles HTTP requests for sales.
type SaleController struct {
	saleService services.SaleService
}

func NewSaleController(svc services.SaleService) *SaleController {
	return &SaleController{saleService: svc}
}

// CreateSale handles POST /api/sales
func (sc *SaleController) CreateSale(ctx *gin.Context) {
	var req services.CreateSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request", err)
		return
	}

	result, svcErr := sc.saleService.CreateSale(ctx.Request.Context(), req)
	if svcErr != nil {
		fail(ctx, svcErr)
		return
	}

	if len(result.Warnings) > 0 {
		ctx.Set(middleware.PartialSuccessKey, true)
		logger.Warn(ctx, "Sale created with unconfirmed stock decrements",
			zap.Int("order_id", result.Order.OrderID),
			zap.Int("warnings", len(result.Warnings)),
		)
	} else {
		logger.Info(ctx, "Sale created", zap.Int("order_id", result.Order.OrderID))
	}
	ctx.JSON(http.StatusCreated, result)
}
