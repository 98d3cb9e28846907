package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
	Dispatch DispatchConfig
	Storage  StorageConfig
	Mail     MailConfig
	Broker   BrokerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// CORSAllowedOrigins is a comma separated allow list; empty allows any origin.
	CORSAllowedOrigins     string
	RateLimitMax           int
	RateLimitWindowSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	AccessTokenTTLMinutes   int
	PasswordResetTTLMinutes int
	BcryptCost              int
}

// RealtimeConfig configures the websocket listener and the cross-instance relay.
type RealtimeConfig struct {
	Addr         string
	SendBuffer   int
	RedisRelay   bool
	RedisChannel string
}

// DispatchConfig bounds notification fan-out.
type DispatchConfig struct {
	Concurrency    int
	TimeoutSeconds int
}

// StorageConfig covers avatar objects and ticket attachment uploads.
type StorageConfig struct {
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	AvatarDir       string
	LegacyUploadDir string
	MaxUploadBytes  int64
}

// MailConfig holds the transactional email provider settings.
type MailConfig struct {
	BrevoAPIKey      string
	SenderEmail      string
	SenderName       string
	PasswordResetURL string
}

// BrokerConfig holds the optional RabbitMQ export target.
type BrokerConfig struct {
	RabbitURL string
	Exchange  string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                   getEnv("APP_NAME", "feedback-tracker"),
			Env:                    getEnv("APP_ENV", "development"),
			Host:                   getEnv("APP_HOST", "0.0.0.0"),
			Port:                   getEnv("APP_PORT", "5000"),
			Version:                getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds:  getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSAllowedOrigins:     os.Getenv("CORS_ALLOWED_ORIGINS"),
			RateLimitMax:           getEnvAsInt("RATE_LIMIT_MAX", 1000),
			RateLimitWindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 600),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 30*24*60),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 10),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Realtime: RealtimeConfig{
			Addr:         getEnv("REALTIME_ADDR", ":8081"),
			SendBuffer:   getEnvAsInt("REALTIME_SEND_BUFFER", 64),
			RedisRelay:   getEnvAsBool("REALTIME_REDIS_RELAY", false),
			RedisChannel: getEnv("REALTIME_REDIS_CHANNEL", "feedback-tracker:realtime"),
		},
		Dispatch: DispatchConfig{
			Concurrency:    getEnvAsInt("DISPATCH_CONCURRENCY", 4),
			TimeoutSeconds: getEnvAsInt("DISPATCH_TIMEOUT_SECONDS", 10),
		},
		Storage: StorageConfig{
			MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
			MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
			MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
			MinioBucket:     getEnv("MINIO_BUCKET", "avatars"),
			MinioUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),
			AvatarDir:       getEnv("AVATAR_DIR", "uploads/avatars"),
			LegacyUploadDir: getEnv("LEGACY_UPLOAD_DIR", "."),
			MaxUploadBytes:  int64(getEnvAsInt("UPLOAD_MAX_BYTES", 5*1024*1024)),
		},
		Mail: MailConfig{
			BrevoAPIKey:      os.Getenv("BREVO_API_KEY"),
			SenderEmail:      getEnv("BREVO_SENDER_EMAIL", "no-reply@brevo.com"),
			SenderName:       getEnv("BREVO_SENDER_NAME", "Loopio Support"),
			PasswordResetURL: getEnv("PASSWORD_RESET_URL", "http://localhost:5173/reset-password/"),
		},
		Broker: BrokerConfig{
			RabbitURL: os.Getenv("RABBIT_URL"),
			Exchange:  getEnv("RABBIT_EXCHANGE", "feedback.exchange"),
		},
	}

	if cfg.Dispatch.Concurrency <= 0 {
		return nil, fmt.Errorf("invalid DISPATCH_CONCURRENCY: %d", cfg.Dispatch.Concurrency)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// RateLimitWindow returns the limiter window.
func (a AppConfig) RateLimitWindow() time.Duration {
	if a.RateLimitWindowSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(a.RateLimitWindowSeconds) * time.Second
}

// Timeout returns the upper bound for one mutation's notification fan-out.
func (d DispatchConfig) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// MinioEnabled reports whether avatar objects go to MinIO instead of local disk.
func (s StorageConfig) MinioEnabled() bool {
	return s.MinioEndpoint != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
