package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/zalo-lead-notifier/internal/audit"
	appconfig "github.com/wolfman30/zalo-lead-notifier/internal/config"
	"github.com/wolfman30/zalo-lead-notifier/internal/zalo"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects a pgx pool, or returns nil when url is empty.
func BuildPostgresPool(ctx context.Context, url string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres pool ready")
	return pool, nil
}

// BuildDeliveryLog opens a database/sql handle over the pgx driver for the
// delivery audit log. It returns nil, nil when url is empty.
func BuildDeliveryLog(url string) (*audit.DeliveryLog, *sql.DB, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil, nil
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	return audit.NewDeliveryLog(db), db, nil
}

// ConfiguredCredentials is the credential triple supplied by configuration.
func ConfiguredCredentials(cfg *appconfig.Config) zalo.Credentials {
	return zalo.Credentials{
		AccessToken:  cfg.ZaloAccessToken,
		RefreshToken: cfg.ZaloRefreshToken,
		ExpiresAt:    cfg.ZaloTokenExpiresAt,
	}
}

// BuildCredentialStore selects the store named by CREDENTIAL_STORE and seeds
// it from configuration. Seeding never overwrites credentials that a
// previous refresh persisted.
func BuildCredentialStore(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (zalo.CredentialStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var store zalo.CredentialStore
	switch cfg.CredentialStore {
	case "", "memory":
		store = zalo.NewMemoryCredentialStore(zalo.Credentials{})
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: CREDENTIAL_STORE=redis requires REDIS_ADDR")
		}
		store = zalo.NewRedisCredentialStore(redisClient, "")
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: CREDENTIAL_STORE=postgres requires DATABASE_URL")
		}
		store = zalo.NewPostgresCredentialStore(pool)
	default:
		return nil, fmt.Errorf("bootstrap: unknown credential store %q", cfg.CredentialStore)
	}

	seed := ConfiguredCredentials(cfg)
	if seed.AccessToken == "" {
		return store, nil
	}
	seeder, ok := store.(zalo.Seeder)
	if !ok {
		return store, nil
	}
	applied, err := seeder.Seed(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: seed credentials: %w", err)
	}
	logger.Info("zalo credential store ready", "store", cfg.CredentialStore, "seeded", applied)
	return store, nil
}
