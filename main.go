package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payrank-backend/config"
	"payrank-backend/internal/api"
	"payrank-backend/internal/database"
	"payrank-backend/internal/metrics"
	"payrank-backend/internal/notify"
	"payrank-backend/internal/payment"
	"payrank-backend/internal/payment/demo"
	stripedriver "payrank-backend/internal/payment/stripe"
	"payrank-backend/internal/services"
	"payrank-backend/internal/store"
	"payrank-backend/internal/utils"
	"payrank-backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// @title payrank-backend API
// @version 1.0
// @description Pay-to-rank leaderboard: payments, ranks, badges and live updates.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	hostname, _ := os.Hostname()
	if err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Service:    "payrank-backend",
		Instance:   hostname,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()
	zlog := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	st, err := openStore(cfg, zlog)
	if err != nil {
		return err
	}

	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	hub := notify.NewHub(zlog, m, 32)
	go hub.Run(ctx)

	var pub notify.Publisher = hub
	if rdb != nil {
		pub = notify.NewRedisPublisher(rdb, notify.DefaultChannelPrefix)
		relay := notify.NewRelay(rdb, hub, notify.DefaultChannelPrefix, zlog)
		go func() {
			if err := relay.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("redis relay stopped", zap.Error(err))
			}
		}()
	}

	location, err := time.LoadLocation(cfg.LeaderboardTZ)
	if err != nil {
		return err
	}
	minAmount, err := decimal.NewFromString(cfg.MinPaymentAmount)
	if err != nil {
		return err
	}

	driver, err := newDriver(cfg, zlog)
	if err != nil {
		return err
	}
	notifier := services.NewNotifier(pub, st, zlog, m)
	users := services.NewUserService(st, rdb, zlog)
	settlement := services.NewSettlementService(st, driver, notifier, users, services.SettlementConfig{
		MinAmount:       minAmount,
		DefaultCurrency: cfg.DefaultCurrency,
		LedgerSecret:    cfg.LedgerSecret,
		MaxAttempts:     cfg.SettlementMaxAttempts,
	}, zlog, m)
	leaderboard := services.NewLeaderboardService(st, services.LeaderboardConfig{Location: location})
	ledger := services.NewLedgerService(st, cfg.LedgerSecret)

	if cfg.DemoMode != config.DemoModeOff {
		seedDemo(ctx, cfg, st, settlement, zlog)
	}

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		Log:         zlog,
		Gatherer:    prometheus.DefaultGatherer,
		Hub:         hub,
		Driver:      driver,
		Users:       users,
		Settlement:  settlement,
		Leaderboard: leaderboard,
		Ledger:      ledger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr), zap.String("gateway", driver.Name()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	notifier.Wait()
	return err
}

func openStore(cfg *config.Config, zlog *zap.Logger) (store.Store, error) {
	if cfg.DemoMode == config.DemoModeMemory {
		zlog.Info("using in-memory store")
		return store.NewMemoryStore(), nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	st := store.NewGormStore(db)
	if err := st.Migrate(); err != nil {
		return nil, err
	}
	return st, nil
}

func newDriver(cfg *config.Config, zlog *zap.Logger) (payment.Driver, error) {
	if cfg.StripeSecretKey != "" {
		httpClient := utils.NewHTTPClient(30*time.Second, zlog)
		return stripedriver.NewDriver(cfg.StripeSecretKey, cfg.StripeWebhookSecret, stripedriver.Backends(httpClient)), nil
	}
	if cfg.DemoMode == config.DemoModeOff {
		return nil, errors.New("no payment gateway configured: set STRIPE_SECRET_KEY or DEMO_MODE")
	}
	zlog.Warn("STRIPE_SECRET_KEY not set, charges are approved by the demo gateway")
	return demo.NewDriver(cfg.StripeWebhookSecret), nil
}

// seedDemo populates an empty store and logs a token per demo account, plus an admin token.
func seedDemo(ctx context.Context, cfg *config.Config, st store.Store, settlement *services.SettlementService, zlog *zap.Logger) {
	users, err := services.SeedDemoData(ctx, st, settlement, zlog)
	if err != nil {
		zlog.Error("failed to seed demo data", zap.Error(err))
		return
	}
	for _, u := range users {
		token, err := utils.GenerateToken(cfg.JWTSecret, u.ID, utils.RoleUser, utils.DefaultTokenTTL)
		if err != nil {
			zlog.Error("failed to issue demo token", zap.Error(err))
			return
		}
		zlog.Info("demo user", zap.String("username", u.Username), zap.String("token", token))
	}
	if len(users) > 0 {
		token, err := utils.GenerateToken(cfg.JWTSecret, users[0].ID, utils.RoleAdmin, utils.DefaultTokenTTL)
		if err == nil {
			zlog.Info("demo admin", zap.String("username", users[0].Username), zap.String("token", token))
		}
	}
}
