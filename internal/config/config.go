package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration. Per-store provider settings live in StoreConfigHolder.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string

	SnowflakeNode int64

	Redis     RedisConfig
	SMTP      SMTPConfig
	Gateway   GatewayConfig
	Scheduler SchedulerConfig

	StoreConfigPaths []string
	APIToken         string
	AdminAPIToken    string
	AdminActors      []string
	SupportActors    []string
	AdminEmails      []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type GatewayConfig struct {
	Timeout        time.Duration
	TokenMargin    time.Duration
	CancelLockTTL  time.Duration
	TokenKeyPrefix string
}

type SchedulerConfig struct {
	Enabled         bool
	RunInterval     time.Duration
	BatchSize       int
	EnabledJobs     []string
	PollDelay       time.Duration
	PollMaxAttempts int
	SessionLapse    time.Duration
	AbandonAfter    time.Duration
}

// Load loads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "walletpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "walletpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "walletpay@localhost"),
		},
		Gateway: GatewayConfig{
			Timeout:        getenvDuration("GATEWAY_TIMEOUT", 30*time.Second),
			TokenMargin:    getenvDuration("GATEWAY_TOKEN_MARGIN", time.Minute),
			CancelLockTTL:  getenvDuration("GATEWAY_CANCEL_LOCK_TTL", time.Minute),
			TokenKeyPrefix: getenv("GATEWAY_TOKEN_KEY_PREFIX", "walletpay:token"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:     getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:       getenvInt("SCHEDULER_BATCH_SIZE", 50),
			EnabledJobs:     splitList(getenv("SCHEDULER_JOBS", "")),
			PollDelay:       getenvDuration("SCHEDULER_POLL_DELAY", 20*time.Second),
			PollMaxAttempts: getenvInt("SCHEDULER_POLL_MAX_ATTEMPTS", 30),
			SessionLapse:    getenvDuration("SCHEDULER_SESSION_LAPSE", 15*time.Minute),
			AbandonAfter:    getenvDuration("SCHEDULER_ABANDON_AFTER", 2*time.Hour),
		},
		StoreConfigPaths: splitList(getenv("STORE_CONFIG_PATHS", "/etc/walletpay,.")),
		APIToken:         strings.TrimSpace(getenv("API_TOKEN", "")),
		AdminAPIToken:    strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		AdminActors:      splitList(getenv("ADMIN_ACTORS", "")),
		SupportActors:    splitList(getenv("SUPPORT_ACTORS", "")),
		AdminEmails:      splitList(getenv("ADMIN_EMAIL", "")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
