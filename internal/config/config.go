package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	CredentialStore string

	// Zalo OA notification settings
	ZaloNotificationEnabled bool
	ZaloAdminUserIDs        []string
	ZaloAccessToken         string
	ZaloRefreshToken        string
	ZaloTokenExpiresAt      time.Time
	ZaloAppID               string
	ZaloAppSecret           string
	ZaloAPIURL              string
	ZaloOAuthURL            string
	ZaloConnectTimeout      time.Duration
	ZaloRequestTimeout      time.Duration
	ZaloTokenBuffer         time.Duration

	// Message rendering
	SiteURL        string
	NotifyTimezone string
	NotifyLocale   string

	HookJWTSecret  string
	AdminJWTSecret string

	// Per-client limit on the CRM hook; 0 disables it
	HookRateLimitRPS   float64
	HookRateLimitBurst int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		CredentialStore: strings.ToLower(strings.TrimSpace(getEnv("CREDENTIAL_STORE", "memory"))),

		ZaloNotificationEnabled: getEnvAsBool("ZALO_NOTIFICATION_ENABLED", false),
		ZaloAdminUserIDs:        getEnvAsList("ZALO_ADMIN_USER_IDS"),
		ZaloAccessToken:         getEnv("ZALO_ACCESS_TOKEN", ""),
		ZaloRefreshToken:        getEnv("ZALO_REFRESH_TOKEN", ""),
		ZaloTokenExpiresAt:      getEnvAsTime("ZALO_TOKEN_EXPIRES_AT"),
		ZaloAppID:               getEnv("ZALO_APP_ID", ""),
		ZaloAppSecret:           getEnv("ZALO_APP_SECRET", ""),
		ZaloAPIURL:              getEnv("ZALO_API_URL", "https://openapi.zalo.me/v3.0/oa/message/cs"),
		ZaloOAuthURL:            getEnv("ZALO_OAUTH_URL", "https://oauth.zaloapp.com/v4/oa/access_token"),
		ZaloConnectTimeout:      getEnvAsDuration("ZALO_CONNECT_TIMEOUT", 10*time.Second),
		ZaloRequestTimeout:      getEnvAsDuration("ZALO_REQUEST_TIMEOUT", 30*time.Second),
		ZaloTokenBuffer:         getEnvAsDuration("ZALO_TOKEN_BUFFER", 5*time.Minute),

		SiteURL:        strings.TrimRight(getEnv("SITE_URL", ""), "/"),
		NotifyTimezone: getEnv("NOTIFY_TIMEZONE", "Asia/Ho_Chi_Minh"),
		NotifyLocale:   strings.ToLower(getEnv("NOTIFY_LOCALE", "vi")),

		HookJWTSecret:  getEnv("HOOK_JWT_SECRET", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		HookRateLimitRPS:   getEnvAsFloat("HOOK_RATE_LIMIT_RPS", 20),
		HookRateLimitBurst: getEnvAsInt("HOOK_RATE_LIMIT_BURST", 40),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	// bare integers are seconds
	if secs := getEnvAsInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks. Order and
// duplicates are kept.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// expiryLayouts are the wall-clock forms accepted besides unix seconds and
// RFC3339. They are read as UTC.
var expiryLayouts = []string{
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

// getEnvAsTime accepts unix seconds, RFC3339 or one of expiryLayouts. Empty
// or "0" yields the zero time, meaning "no expiry known". Any other value
// that cannot be read yields the unix epoch so the token counts as expired.
func getEnvAsTime(key string) time.Time {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(secs) && !math.IsInf(secs, 0) {
		if secs == 0 {
			return time.Time{}
		}
		return time.Unix(int64(secs), 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t
		}
	}
	logging.Default().Warn("config: unreadable expiry, treating as expired", "key", key, "value", raw)
	return time.Unix(0, 0).UTC()
}
