package controllers

import (
	"strconv"

	apperrors "sales-service/common/errors"
	"sales-service/common/logger"

	"github.com/gin-gonic/gin"
)

// fail hands err to errors.ErrorMiddleware for rendering.
func fail(ctx *gin.Context, err *apperrors.Error) {
	if err.Kind == apperrors.KindInternal {
		logger.Error(ctx, err.Message, err.Err)
	}
	_ = ctx.Error(err)
	ctx.Abort()
}

func badRequest(ctx *gin.Context, message string, err error) {
	appErr := apperrors.InvalidArgument(message)
	if err != nil {
		appErr = appErr.WithDetails(err.Error())
	}
	fail(ctx, appErr)
}

// intParam parses a positive path parameter.
func intParam(ctx *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(ctx.Param(name))
	if err != nil || v <= 0 {
		badRequest(ctx, "invalid "+name, nil)
		return 0, false
	}
	return v, true
}
