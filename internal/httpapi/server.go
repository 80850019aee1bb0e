package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/parqops/parking/pkg/parking"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownGracePeriod = 5 * time.Second

// Run boots the HTTP API and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, service *parking.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	router := NewRouter(cfg, service, logger)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with middleware and routes. It is
// exported so tests can drive the full stack through httptest.
func NewRouter(cfg Config, service *parking.Service, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ginContext *gin.Context) {
		ginContext.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiHandler := &handler{service: service, logger: logger}

	api := router.Group("/api")
	if cfg.RateLimitPerSecond > 0 {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		api.Use(rateLimit(redisClient, cfg.RateLimitPerSecond, logger))
	}
	api.Use(bearerAuth([]byte(cfg.TokenSigningKey), cfg.TokenIssuer))

	api.GET("/parking-spaces", apiHandler.handleSearchSpaces)
	api.POST("/parking-spaces", apiHandler.handleCreateSpace)
	api.GET("/parking-spaces/:id", apiHandler.handleGetSpace)
	api.PUT("/parking-spaces/:id", apiHandler.handleUpdateSpace)
	api.DELETE("/parking-spaces/:id", apiHandler.handleRetireSpace)

	api.POST("/vehicles", apiHandler.handleCreateVehicle)

	api.POST("/reservations", apiHandler.handleCreateReservation)
	api.GET("/reservations", apiHandler.handleListReservations)
	api.GET("/reservations/:id", apiHandler.handleGetReservation)
	api.PUT("/reservations/:id", apiHandler.handleUpdateReservation)
	api.DELETE("/reservations/:id", apiHandler.handleDeleteReservation)
	api.GET("/reservations/:id/payment", apiHandler.handleGetReservationPayment)

	api.POST("/payments", apiHandler.handleCreatePayment)
	api.GET("/payments", apiHandler.handleListPayments)

	return router
}
