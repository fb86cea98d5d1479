package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/takeout/pkg/config"
	"github.com/example/takeout/pkg/metrics"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/repository"
	"github.com/example/takeout/pkg/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type CartAPI interface {
	AddOrIncrement(ctx context.Context, userID int64, ref service.ItemRef, flavor string) (*models.CartEntry, error)
	DecrementOrRemove(ctx context.Context, userID int64, ref service.ItemRef, flavor string) (*models.CartEntry, error)
	List(ctx context.Context, userID int64) ([]models.CartEntry, error)
	Clear(ctx context.Context, userID int64) error
}

type OrderAPI interface {
	Submit(ctx context.Context, userID int64, draft service.DraftOrder) (*models.OrderHeader, error)
	Page(ctx context.Context, q service.OrderPageQuery) (*service.OrderPage, error)
	Get(ctx context.Context, id int64) (*models.OrderHeader, error)
}

type LifecycleAPI interface {
	SetStatus(ctx context.Context, kind models.ItemKind, ids []int64, status models.SaleStatus) error
	Delete(ctx context.Context, kind models.ItemKind, ids []int64) error
}

type CatalogAPI interface {
	ListDishes(ctx context.Context, categoryID int64) ([]models.Dish, error)
	ListCombos(ctx context.Context, categoryID int64) ([]models.Combo, error)
	RemoveCategory(ctx context.Context, id int64) error
}

type AuditReader interface {
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

// Services are the handlers' collaborators. Audit is optional.
type Services struct {
	Cart      CartAPI
	Orders    OrderAPI
	Lifecycle LifecycleAPI
	Catalog   CatalogAPI
	Audit     AuditReader
}

type Gateway struct {
	config   *config.Config
	services Services
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

func NewGateway(cfg *config.Config, logger *zap.Logger, svc Services, m *metrics.Metrics, gatherer prometheus.Gatherer) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))
	router.Use(metricsMiddleware(m))
	if len(cfg.HTTP.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.HTTP.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
			ExposeHeaders:    []string{"Content-Length", requestIDHeader},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	return &Gateway{
		config:   cfg,
		services: svc,
		metrics:  m,
		gatherer: gatherer,
		logger:   logger,
		router:   router,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if g.gatherer != nil {
		g.router.GET("/metrics", gin.WrapH(metrics.Handler(g.gatherer)))
	}

	v1 := g.router.Group("/api/v1")
	v1.Use(authMiddleware(g.config.Auth.JWTSecret, g.config.Auth.Issuer))
	{
		cart := v1.Group("/cart")
		{
			cart.POST("/add", g.addToCart)
			cart.POST("/sub", g.subFromCart)
			cart.GET("", g.listCart)
			cart.DELETE("", g.clearCart)
		}

		v1.POST("/orders/submit", g.submitOrder)
		v1.GET("/dishes", g.listDishes)
		v1.GET("/combos", g.listCombos)

		admin := v1.Group("/admin")
		admin.Use(requireRole(RoleEmployee))
		{
			admin.POST("/dishes/status/:status", g.setStatus(models.KindDish))
			admin.POST("/combos/status/:status", g.setStatus(models.KindCombo))
			admin.DELETE("/dishes", g.deleteItems(models.KindDish))
			admin.DELETE("/combos", g.deleteItems(models.KindCombo))

			admin.GET("/orders/page", g.pageOrders)
			admin.GET("/orders/:id", g.getOrder)

			admin.DELETE("/categories/:id", g.removeCategory)

			if g.services.Audit != nil {
				admin.GET("/audit", g.listAudit)
			}
		}
	}
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}
