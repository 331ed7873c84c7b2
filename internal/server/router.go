// Package server assembles the gin engine: middleware, routes and static files.
package server

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go-pos-register/internal/auth"
	"go-pos-register/internal/handlers"
	"go-pos-register/internal/logging"
	"go-pos-register/internal/metrics"
	"go-pos-register/internal/middleware"
	"go-pos-register/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Options struct {
	CORSOrigins       []string
	AllowRegistration bool
	UploadDir         string
	// WebDir holds the built frontend (index.html, assets/); empty disables it.
	WebDir string
}

func NewRouter(h *handlers.Handler, tokens *auth.TokenManager, m *metrics.Metrics, log zerolog.Logger, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(log), m.Middleware())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", handlers.IdempotencyHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "online"}) })
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.POST("/login", h.Login)
	if opts.UploadDir != "" {
		r.Static("/uploads", opts.UploadDir)
	}

	if opts.AllowRegistration {
		r.POST("/register", h.Register)
		log.Warn().Msg("registration route is OPEN, disable ALLOW_REGISTRATION in production")
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(tokens))
	{
		// staff and admin
		api.GET("/products", h.GetProducts)
		api.GET("/products/scan/:sku", h.ScanProduct)
		api.GET("/categories", h.GetCategories)

		api.POST("/checkout", h.ProcessSale)
		api.POST("/checkout/quote", h.QuoteSale)
		api.GET("/sales/:id", h.GetSale)
		api.GET("/sales/invoice/:invoice", h.GetSaleByInvoice)

		api.GET("/shifts/current", h.CurrentShift)
		api.POST("/shifts/start", h.StartShift)
		api.POST("/shifts/close", h.CloseShift)

		api.GET("/held-orders", h.GetHeldOrders)
		api.POST("/held-orders", h.HoldOrder)
		api.POST("/held-orders/:id/recall", h.RecallOrder)
		api.DELETE("/held-orders/:id", h.DeleteHeldOrder)

		admin := api.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/ask", h.AskAI)
			admin.POST("/users", h.CreateUser)
			admin.POST("/upload", h.UploadImage)

			admin.GET("/products/:id", h.GetProduct)
			admin.POST("/products", h.AddProduct)
			admin.PUT("/products/:id", h.UpdateProduct)
			admin.DELETE("/products/:id", h.DeleteProduct)
			admin.POST("/products/:id/stock", h.ChangeStock)
			admin.PUT("/products/:id/stock", h.ChangeStock)
			admin.GET("/products/:id/movements", h.GetMovements)

			admin.POST("/categories", h.AddCategory)
			admin.DELETE("/categories/:id", h.DeleteCategory)

			admin.GET("/reports", h.GetSalesReport)
			admin.GET("/reports/low-stock", h.GetLowStock)
			admin.GET("/reports/valuation", h.GetStockValuation)

			admin.GET("/shifts", h.ListShifts)
			admin.GET("/shifts/:id", h.GetShift)
		}
	}

	if opts.WebDir != "" {
		r.Static("/assets", filepath.Join(opts.WebDir, "assets"))
		// SPA catch-all: unknown non-API paths get index.html so the client router handles them.
		index := filepath.Join(opts.WebDir, "index.html")
		r.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "not_found"})
				return
			}
			c.File(index)
		})
	}

	return r
}
