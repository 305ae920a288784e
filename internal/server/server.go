package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/matbakhapp/matbakh/internal/config"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	"github.com/matbakhapp/matbakh/internal/observability/metrics"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
	"github.com/matbakhapp/matbakh/internal/providers/pdf"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
	stockdomain "github.com/matbakhapp/matbakh/internal/stock/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	return NewEngine(log, m)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	orderSvc      orderdomain.Service
	settlementSvc settlementdomain.Service
	stockSvc      stockdomain.Resolver
	kitchenSvc    kitchendomain.Service
	statements    pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	OrderSvc      orderdomain.Service
	SettlementSvc settlementdomain.Service
	StockSvc      stockdomain.Resolver
	KitchenSvc    kitchendomain.Service
	Statements    pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		orderSvc:      p.OrderSvc,
		settlementSvc: p.SettlementSvc,
		stockSvc:      p.StockSvc,
		kitchenSvc:    p.KitchenSvc,
		statements:    p.Statements,
	}

	svc.registerOrderRoutes()
	svc.registerSettlementRoutes()

	return svc
}
