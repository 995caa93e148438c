package api

import (
	"net/http"
	"time"

	"referral_gate_bot/internal/middleware"
	"referral_gate_bot/internal/service"
	"referral_gate_bot/pkg/auth"
	"referral_gate_bot/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      string `mapstructure:"port"`
	AuthDebug bool   `mapstructure:"authDebug"`
}

func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type Dependencies struct {
	Repo      service.SnapshotRepository
	Referrals service.ReferralServiceI
	Stats     service.StatsServiceI
	Events    *service.EventFeed
	Auth      *auth.TelegramAuth
	Authz     *middleware.Authorization
}

func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
	}
	config.AllowHeaders = []string{"Authorization", "Content-Type"}
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	router.GET("/health", healthHandler(deps.Repo, deps.Events))

	a := router.Group("/api/v1")
	NewUserRoutes(a, deps.Referrals, deps.Auth)
	NewAdminRoutes(a, deps.Stats, deps.Events, deps.Auth, deps.Authz)

	return router
}

func healthHandler(repo service.SnapshotRepository, events *service.EventFeed) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := repo.Snapshot(c.Request.Context())
		if err != nil {
			logger.Logger().Error("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"users":             len(snapshot.Users),
			"snapshot_version":  snapshot.Version,
			"event_subscribers": events.Subscribers(),
		})
	}
}
