package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/zalo-lead-notifier/internal/api/router"
	"github.com/wolfman30/zalo-lead-notifier/internal/app/bootstrap"
	appconfig "github.com/wolfman30/zalo-lead-notifier/internal/config"
	"github.com/wolfman30/zalo-lead-notifier/internal/http/handlers"
	"github.com/wolfman30/zalo-lead-notifier/internal/notify"
	"github.com/wolfman30/zalo-lead-notifier/internal/observability/metrics"
	"github.com/wolfman30/zalo-lead-notifier/internal/zalo"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting zalo-lead-notifier",
		"env", cfg.Env,
		"port", cfg.Port,
		"credential_store", cfg.CredentialStore,
		"notifications_enabled", cfg.ZaloNotificationEnabled,
		"recipients", len(cfg.ZaloAdminUserIDs),
	)

	ctx := context.Background()
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)

	store, err := bootstrap.BuildCredentialStore(ctx, cfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("failed to build credential store", "error", err)
		os.Exit(1)
	}

	metricsHandler, notifierMetrics := setupMetrics()
	httpClient := zalo.NewHTTPClient(cfg.ZaloConnectTimeout, cfg.ZaloRequestTimeout)
	tokens := zalo.NewTokenManager(store, zalo.TokenManagerConfig{
		App:        zalo.AppIdentity{AppID: cfg.ZaloAppID, AppSecret: cfg.ZaloAppSecret},
		OAuthURL:   cfg.ZaloOAuthURL,
		Buffer:     cfg.ZaloTokenBuffer,
		HTTPClient: httpClient,
		Logger:     logger,
		Metrics:    notifierMetrics,
	})

	deliveryLog, auditDB, err := bootstrap.BuildDeliveryLog(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open delivery log", "error", err)
		os.Exit(1)
	}
	if auditDB != nil {
		defer func() { _ = auditDB.Close() }()
	}
	var (
		recorder notify.DeliveryRecorder
		lister   handlers.DeliveryLister
	)
	if deliveryLog != nil {
		recorder = deliveryLog
		lister = deliveryLog
	}

	if cfg.SiteURL == "" {
		logger.Warn("SITE_URL not set; lead links will be relative")
	}
	loc := loadLocation(cfg.NotifyTimezone, logger)
	dispatcher := notify.NewDispatcher(tokens, zalo.NewClient(cfg.ZaloAPIURL, httpClient), notify.DispatcherConfig{
		SiteURL:  cfg.SiteURL,
		Template: notify.TemplateFor(cfg.NotifyLocale),
		Location: loc,
		Logger:   logger,
		Metrics:  notifierMetrics,
		Audit:    recorder,
	})
	hook := notify.NewLeadHook(dispatcher, cfg.ZaloNotificationEnabled, cfg.ZaloAdminUserIDs, logger)
	if cfg.ZaloNotificationEnabled && len(cfg.ZaloAdminUserIDs) == 0 {
		logger.Warn("zalo notifications enabled but ZALO_ADMIN_USER_IDS is empty")
	}

	r := router.New(&router.Config{
		Logger:         logger,
		CRMHook:        handlers.NewCRMHookHandler(hook, notifierMetrics, logger),
		ZaloAdmin:      handlers.NewZaloAdminHandler(tokens, lister, cfg.NotifyLocale, loc, logger),
		HookJWTSecret:  cfg.HookJWTSecret,
		AdminJWTSecret: cfg.AdminJWTSecret,
		HookRatePerSec: cfg.HookRateLimitRPS,
		HookRateBurst:  cfg.HookRateLimitBurst,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: hookWriteTimeout(len(cfg.ZaloAdminUserIDs), cfg.ZaloRequestTimeout),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.NotifierMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewNotifierMetrics(reg)
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	pool, err := bootstrap.BuildPostgresPool(ctx, url, logger)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		return nil
	}
	return pool
}

func loadLocation(name string, logger *logging.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown NOTIFY_TIMEZONE, using UTC+7", "timezone", name, "error", err)
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// hookWriteTimeout leaves room for one refresh plus one send per recipient,
// since the hook answers only after every recipient has been tried.
func hookWriteTimeout(recipients int, perRequest time.Duration) time.Duration {
	return time.Duration(recipients+1)*perRequest + 15*time.Second
}
