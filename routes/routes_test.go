package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"sales-service/routes"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRegisterHub_BothSlashForms(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, path := range []string{"/ws/", "/ws", "/live/sales/"} {
		r := gin.New()
		hits := 0
		routes.RegisterHub(r, path, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusTeapot)
		}))

		base := path
		if base[len(base)-1] == '/' {
			base = base[:len(base)-1]
		}
		for _, p := range []string{base, base + "/"} {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
			assert.Equal(t, http.StatusTeapot, w.Code, p)
		}
		assert.Equal(t, 2, hits)
	}
}
