package api

import (
	"net/http"
	"time"

	"payrank-backend/config"
	adminLedger "payrank-backend/internal/api/v1/admin/ledger"
	adminPayment "payrank-backend/internal/api/v1/admin/payment"
	"payrank-backend/internal/api/v1/leaderboard"
	paymentRoutes "payrank-backend/internal/api/v1/payment"
	"payrank-backend/internal/api/v1/stream"
	userRoutes "payrank-backend/internal/api/v1/user"
	"payrank-backend/internal/middleware"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/payment"
	"payrank-backend/internal/services"
	"payrank-backend/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the services the HTTP layer is built from.
type Deps struct {
	Config      *config.Config
	Log         *zap.Logger
	Gatherer    prometheus.Gatherer
	Hub         *notify.Hub
	Driver      payment.Driver
	Users       *services.UserService
	Settlement  *services.SettlementService
	Leaderboard *services.LeaderboardService
	Ledger      *services.LedgerService
	// Heartbeat is the SSE keep-alive interval; zero uses stream.DefaultHeartbeat.
	Heartbeat time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	if d.Heartbeat <= 0 {
		d.Heartbeat = stream.DefaultHeartbeat
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(d.Log))

	// Configure CORS
	corsConfig := cors.Config{
		AllowOrigins:     d.Config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300 * time.Second, // Maximum age for preflight requests
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.NewSuccessResponse("ok", gin.H{"gateway": d.Driver.Name()}))
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	secret := d.Config.JWTSecret

	// API v1
	v1 := router.Group("/api/v1")
	{
		authorized := v1.Group("/")
		authorized.Use(middleware.AuthMiddleware(secret, d.Users))

		leaderboard.RegisterRoutes(v1, authorized,
			leaderboard.NewHandler(d.Leaderboard, d.Hub, d.Heartbeat))
		paymentRoutes.RegisterRoutes(v1, authorized,
			paymentRoutes.NewHandler(d.Settlement, d.Leaderboard, d.Driver))
		userRoutes.RegisterRoutes(authorized,
			userRoutes.NewHandler(d.Users, d.Hub, d.Heartbeat))

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(secret, d.Users, d.Log))
		{
			adminPayment.RegisterRoutes(admin, adminPayment.NewHandler(d.Settlement))
			adminLedger.RegisterRoutes(admin, adminLedger.NewHandler(d.Ledger))
		}
	}

	return router
}
