package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "sales-service/common/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", apperrors.NotFound("customer 7 not found"))

	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
	assert.False(t, stderrors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(stderrors.New("boom")))
}

func TestWithDetailsCopies(t *testing.T) {
	base := apperrors.Conflict("insufficient stock")
	withDetails := base.WithDetails([]int{1, 2})

	assert.Nil(t, base.Details)
	assert.Equal(t, []int{1, 2}, withDetails.Details)
	assert.Equal(t, http.StatusConflict, withDetails.Code)
}

func TestErrorMiddleware_ForeignErrorDoesNotLeak(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(stderrors.New("db down"))
	})
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperrors.NotFound("order 1 not found"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"internal"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "order 1 not found")
}
