package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthTokenTTL  time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	DBSlowQueryThreshold time.Duration

	PricingConfigDir string

	Observability ObservabilityConfig
	Payment       PaymentConfig
	Email         EmailConfig
	RateLimit     RateLimitConfig
	Storage       StorageConfig
	Events        EventsConfig
	Scheduler     SchedulerConfig
	Bootstrap     BootstrapConfig
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

type PaymentConfig struct {
	Provider      string
	SecretKey     string
	WebhookSecret string
	CallbackToken string
	BaseURL       string
	SuccessURL    string
	CancelURL     string
	Currency      string
	Timeout       time.Duration
}

type EmailConfig struct {
	Provider        string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	OperatorAddress string
	FallbackAddress string
	Timeout         time.Duration
}

type RateLimitConfig struct {
	Enabled          bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	TransactionRate  float64
	TransactionBurst int
	LockTTL          time.Duration
}

type StorageConfig struct {
	Driver          string
	LocalDir        string
	PublicBaseURL   string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool
	S3PublicBaseURL string
}

type EventsConfig struct {
	NATSURL string
	Stream  string
	MaxAge  time.Duration
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	JobTimeout  time.Duration
}

// BootstrapConfig seeds the first privileged account on an empty database.
type BootstrapConfig struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "moviestore"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:  getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "moviestore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "moviestore.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		DBSlowQueryThreshold: getenvDuration("DATABASE_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),

		PricingConfigDir: strings.TrimSpace(getenv("PRICING_CONFIG_DIR", "")),

		Observability: ObservabilityConfig{
			LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:       getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:      strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			OtelSamplingRatio: clamp01(getenvFloat("OTEL_SAMPLING_RATIO", 0.1)),
		},
		Payment: PaymentConfig{
			Provider:      strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "stripe"))),
			SecretKey:     strings.TrimSpace(getenv("PAYMENT_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
			CallbackToken: strings.TrimSpace(getenv("PAYMENT_CALLBACK_TOKEN", "")),
			BaseURL:       strings.TrimSpace(getenv("PAYMENT_BASE_URL", "")),
			SuccessURL:    getenv("PAYMENT_SUCCESS_URL", "http://localhost:8080/payments/success"),
			CancelURL:     getenv("PAYMENT_CANCEL_URL", "http://localhost:8080/payments/cancel"),
			Currency:      strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),
			Timeout:       getenvDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
		},
		Email: EmailConfig{
			Provider:        strings.ToLower(getenv("EMAIL_PROVIDER", "noop")),
			SMTPHost:        getenv("SMTP_HOST", ""),
			SMTPPort:        getenvInt("SMTP_PORT", 587),
			SMTPUsername:    getenv("SMTP_USERNAME", ""),
			SMTPPassword:    getenv("SMTP_PASSWORD", ""),
			SMTPFrom:        getenv("SMTP_FROM", "no-reply@moviestore.local"),
			OperatorAddress: getenv("OPERATOR_EMAIL", ""),
			FallbackAddress: getenv("OPERATOR_FALLBACK_EMAIL", ""),
			Timeout:         getenvDuration("NOTIFICATION_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:    getenv("REDIS_PASSWORD", ""),
			RedisDB:          getenvInt("REDIS_DB", 0),
			TransactionRate:  getenvFloat("RATE_LIMIT_TRANSACTION_RATE", 1),
			TransactionBurst: getenvInt("RATE_LIMIT_TRANSACTION_BURST", 5),
			LockTTL:          getenvDuration("RATE_LIMIT_LOCK_TTL", 15*time.Second),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(getenv("STORAGE_DRIVER", "local")),
			LocalDir:        getenv("STORAGE_LOCAL_DIR", "./data/images"),
			PublicBaseURL:   getenv("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/media"),
			S3Bucket:        getenv("S3_BUCKET", ""),
			S3Region:        getenv("S3_REGION", "us-east-1"),
			S3Endpoint:      getenv("S3_ENDPOINT", ""),
			S3AccessKey:     getenv("S3_ACCESS_KEY", ""),
			S3SecretKey:     getenv("S3_SECRET_KEY", ""),
			S3UsePathStyle:  getenvBool("S3_USE_PATH_STYLE", true),
			S3PublicBaseURL: getenv("S3_PUBLIC_BASE_URL", ""),
		},
		Events: EventsConfig{
			NATSURL: strings.TrimSpace(getenv("NATS_URL", "")),
			Stream:  getenv("NATS_STREAM", "MOVIESTORE"),
			MaxAge:  getenvDuration("NATS_STREAM_MAX_AGE", 7*24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", 15*time.Minute),
			JobTimeout:  getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_USERNAME", "")),
			AdminEmail:    strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMAIL", "")),
			AdminPassword: getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
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
	if value == "" {
		return def
	}
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
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
	if err != nil {
		return def
	}
	return parsed
}
