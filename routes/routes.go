package routes

import (
	"net/http"
	"strings"

	"sales-service/controllers"

	"github.com/gin-gonic/gin"
)

// Controllers groups the REST handlers mounted under /api.
type Controllers struct {
	Sales     *controllers.SaleController
	Customers *controllers.CustomerController
	Orders    *controllers.OrderController
	Inventory *controllers.InventoryController
}

// RegisterRoutes mounts the REST API, the health check and the sales hub.
// apiMiddleware applies to /api only; hub connections outlive any request
// timeout.
func RegisterRoutes(r *gin.Engine, c Controllers, hubPath string, hub http.Handler, apiMiddleware ...gin.HandlerFunc) {
	r.GET("/health", c.Inventory.Health)

	api := r.Group("/api", apiMiddleware...)
	api.POST("/sales", c.Sales.CreateSale)
	api.GET("/inventory", c.Inventory.Inventory)

	customers := api.Group("/customers")
	customers.GET("", c.Customers.List)
	customers.POST("", c.Customers.Create)
	customers.GET("/:id", c.Customers.Get)
	customers.PUT("/:id", c.Customers.Update)
	customers.DELETE("/:id", c.Customers.Delete)

	orders := api.Group("/orders")
	orders.GET("", c.Orders.List)
	orders.POST("", c.Orders.Create)
	orders.GET("/:id", c.Orders.Get)
	orders.DELETE("/:id", c.Orders.Delete)
	orders.POST("/:id/checkout", c.Orders.Checkout)
	orders.GET("/:id/products", c.Orders.ListProducts)
	orders.POST("/:id/products", c.Orders.AddProduct)
	orders.PUT("/:id/products/:productId", c.Orders.UpdateProduct)
	orders.DELETE("/:id/products/:productId", c.Orders.RemoveProduct)

	api.GET("/orderProducts", c.Orders.ListOpenProducts)

	RegisterHub(r, hubPath, hub)
}

// RegisterHub serves the WebSocket hub on path with and without a
// trailing slash; a redirect would break the upgrade.
func RegisterHub(r *gin.Engine, path string, hub http.Handler) {
	handler := gin.WrapH(hub)
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		trimmed = "/ws"
	}
	r.GET(trimmed, handler)
	r.GET(trimmed+"/", handler)
}
