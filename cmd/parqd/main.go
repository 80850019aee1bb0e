package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/parqops/parking/internal/httpapi"
	"github.com/parqops/parking/internal/scheduler"
	"github.com/parqops/parking/internal/store/gormstore"
	"github.com/parqops/parking/pkg/parking"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagTokenSigningKey   = "token-signing-key"
	flagTokenIssuer       = "token-issuer"
	flagRedisAddr         = "redis-addr"
	flagRateLimitRPS      = "rate-limit-rps"
	flagSweepInterval     = "sweep-interval"
	flagStalePendingAfter = "stale-pending-after"

	configKeyDatabaseURL       = "database_url"
	configKeyListenAddr        = "listen_addr"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeyTokenSigningKey   = "token_signing_key"
	configKeyTokenIssuer       = "token_issuer"
	configKeyRedisAddr         = "redis_addr"
	configKeyRateLimitRPS      = "rate_limit_rps"
	configKeySweepInterval     = "sweep_interval"
	configKeyStalePendingAfter = "stale_pending_after"

	defaultDatabaseURL       = "sqlite:///tmp/parking.db"
	defaultListenAddr        = ":8080"
	defaultSweepInterval     = time.Minute
	defaultStalePendingAfter = 15 * time.Minute
)

type runtimeConfig struct {
	DatabaseURL       string
	ListenAddr        string
	AllowedOrigins    string
	TokenSigningKey   string
	TokenIssuer       string
	RedisAddr         string
	RateLimitRPS      int
	SweepInterval     time.Duration
	StalePendingAfter time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parqd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "parqd",
		Short:         "Parking capacity and reservation API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-separated CORS origins")
	cmd.Flags().String(flagTokenSigningKey, "", "HS256 signing key for bearer tokens")
	cmd.Flags().String(flagTokenIssuer, "", "Expected bearer token issuer")
	cmd.Flags().String(flagRedisAddr, "", "Redis address for the rate limiter")
	cmd.Flags().Int(flagRateLimitRPS, 0, "Per-IP requests per second (0 disables)")
	cmd.Flags().Duration(flagSweepInterval, defaultSweepInterval, "Lifecycle sweep cadence")
	cmd.Flags().Duration(flagStalePendingAfter, defaultStalePendingAfter, "Age after which pending reservations expire")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:       "DATABASE_URL",
		configKeyListenAddr:        "LISTEN_ADDR",
		configKeyAllowedOrigins:    "ALLOWED_ORIGINS",
		configKeyTokenSigningKey:   "TOKEN_SIGNING_KEY",
		configKeyTokenIssuer:       "TOKEN_ISSUER",
		configKeyRedisAddr:         "REDIS_ADDR",
		configKeyRateLimitRPS:      "RATE_LIMIT_RPS",
		configKeySweepInterval:     "SWEEP_INTERVAL",
		configKeyStalePendingAfter: "STALE_PENDING_AFTER",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseURL:       flagDatabaseURL,
		configKeyListenAddr:        flagListenAddr,
		configKeyAllowedOrigins:    flagAllowedOrigins,
		configKeyTokenSigningKey:   flagTokenSigningKey,
		configKeyTokenIssuer:       flagTokenIssuer,
		configKeyRedisAddr:         flagRedisAddr,
		configKeyRateLimitRPS:      flagRateLimitRPS,
		configKeySweepInterval:     flagSweepInterval,
		configKeyStalePendingAfter: flagStalePendingAfter,
	}
	for configKey, flagName := range flags {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.TokenSigningKey = viper.GetString(configKeyTokenSigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.RedisAddr = viper.GetString(configKeyRedisAddr)
	cfg.RateLimitRPS = viper.GetInt(configKeyRateLimitRPS)
	cfg.SweepInterval = viper.GetDuration(configKeySweepInterval)
	cfg.StalePendingAfter = viper.GetDuration(configKeyStalePendingAfter)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := gormstore.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	parkingService, err := parking.NewService(store, clock,
		parking.WithOperationLogger(&zapOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("parking service init: %w", err)
	}

	sweepScheduler, err := scheduler.New(parkingService, logger, scheduler.Config{
		SweepInterval:     cfg.SweepInterval,
		StalePendingAfter: cfg.StalePendingAfter,
	})
	if err != nil {
		return fmt.Errorf("scheduler init: %w", err)
	}
	if err := sweepScheduler.Start(); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}
	defer sweepScheduler.Stop()

	return httpapi.Run(ctx, httpapi.Config{
		ListenAddr:         cfg.ListenAddr,
		AllowedOrigins:     httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		TokenSigningKey:    cfg.TokenSigningKey,
		TokenIssuer:        cfg.TokenIssuer,
		RedisAddr:          cfg.RedisAddr,
		RateLimitPerSecond: cfg.RateLimitRPS,
	}, parkingService, logger)
}

// zapOperationLogger bridges domain operation callbacks onto zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry parking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.Actor.String() != "" {
		fields = append(fields, zap.String("actor", entry.Actor.String()))
	}
	if entry.SpaceID.String() != "" {
		fields = append(fields, zap.String("space_id", entry.SpaceID.String()))
	}
	if entry.ReservationID.String() != "" {
		fields = append(fields, zap.String("reservation_id", entry.ReservationID.String()))
	}
	if entry.PaymentID.String() != "" {
		fields = append(fields, zap.String("payment_id", entry.PaymentID.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Float64("amount", entry.Amount))
	}
	if entry.Count != 0 {
		fields = append(fields, zap.Int64("count", entry.Count))
	}
	if entry.Error != nil {
		adapter.logger.Error("parking operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info("parking operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "parking.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
