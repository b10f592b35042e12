package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Kafka      KafkaConfig
	Upload     UploadConfig
	Cloudinary CloudinaryConfig
	Realtime   RealtimeConfig
	Operator   OperatorConfig
	Client     ClientConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
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
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// KafkaConfig points the review-queue producer at a broker. An empty broker disables it.
type KafkaConfig struct {
	Broker      string
	ReviewTopic string
	Username    string
	Password    string
	UseTLS      bool
	// WorkerBuffer bounds review tasks waiting for the producer.
	WorkerBuffer int
}

// UploadConfig bounds artifact uploads.
type UploadConfig struct {
	MaxBytes         int64
	AllowedMimeTypes []string
	Folder           string
	LocalDir         string
	TimeoutSeconds   int
}

// CloudinaryConfig holds the CLOUDINARY_URL. An empty URL selects local disk storage.
type CloudinaryConfig struct {
	URL string
}

// RealtimeConfig tunes websocket sessions and cross-instance fan-out.
type RealtimeConfig struct {
	SessionBuffer   int
	WriteTimeoutSec int
	PingIntervalSec int
	RedisChannel    string
}

// OperatorConfig seeds the first console account.
type OperatorConfig struct {
	BootstrapEmail    string
	BootstrapPassword string
	BootstrapName     string
}

// ClientConfig drives the submitter-side sync client.
type ClientConfig struct {
	BaseURL        string
	ChannelURL     string
	Token          string
	PartnerSubject bool
	PropertyIDs    []string
	BackoffBaseMS  int
	BackoffCapMS   int
	MaxAttempts    int
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
			Name:                  getEnv("APP_NAME", "verification-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
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
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Kafka: KafkaConfig{
			Broker:       os.Getenv("KAFKA_BROKER"),
			ReviewTopic:  getEnv("KAFKA_REVIEW_TOPIC", "verification.review-queue"),
			Username:     os.Getenv("KAFKA_USERNAME"),
			Password:     os.Getenv("KAFKA_PASSWORD"),
			UseTLS:       getEnvAsBool("KAFKA_TLS", false),
			WorkerBuffer: getEnvAsInt("KAFKA_REVIEW_BUFFER", 256),
		},
		Upload: UploadConfig{
			MaxBytes:         int64(getEnvAsInt("UPLOAD_MAX_BYTES", 10<<20)),
			AllowedMimeTypes: getEnvAsList("UPLOAD_ALLOWED_MIME_TYPES", []string{"image/jpeg", "image/png", "application/pdf"}),
			Folder:           getEnv("UPLOAD_FOLDER", "verification"),
			LocalDir:         getEnv("UPLOAD_LOCAL_DIR", "./data/artifacts"),
			TimeoutSeconds:   getEnvAsInt("UPLOAD_TIMEOUT_SECONDS", 20),
		},
		Cloudinary: CloudinaryConfig{
			URL: os.Getenv("CLOUDINARY_URL"),
		},
		Realtime: RealtimeConfig{
			SessionBuffer:   getEnvAsInt("REALTIME_SESSION_BUFFER", 32),
			WriteTimeoutSec: getEnvAsInt("REALTIME_WRITE_TIMEOUT_SECONDS", 5),
			PingIntervalSec: getEnvAsInt("REALTIME_PING_INTERVAL_SECONDS", 25),
			RedisChannel:    getEnv("REALTIME_REDIS_CHANNEL", "verification:push"),
		},
		Operator: OperatorConfig{
			BootstrapEmail:    os.Getenv("OPERATOR_BOOTSTRAP_EMAIL"),
			BootstrapPassword: os.Getenv("OPERATOR_BOOTSTRAP_PASSWORD"),
			BootstrapName:     getEnv("OPERATOR_BOOTSTRAP_NAME", "Platform Admin"),
		},
		Client: ClientConfig{
			BaseURL:        getEnv("SYNC_BASE_URL", "http://127.0.0.1:8080"),
			ChannelURL:     getEnv("SYNC_CHANNEL_URL", "ws://127.0.0.1:8080/ws/verification"),
			Token:          os.Getenv("SYNC_TOKEN"),
			PartnerSubject: getEnvAsBool("SYNC_PARTNER", true),
			PropertyIDs:    getEnvAsList("SYNC_PROPERTY_IDS", nil),
			BackoffBaseMS:  getEnvAsInt("SYNC_BACKOFF_BASE_MS", 1000),
			BackoffCapMS:   getEnvAsInt("SYNC_BACKOFF_CAP_MS", 5000),
			MaxAttempts:    getEnvAsInt("SYNC_MAX_ATTEMPTS", 5),
		},
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

// Timeout returns the upload deadline.
func (u UploadConfig) Timeout() time.Duration {
	if u.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// WriteTimeout returns the per-frame websocket write deadline.
func (r RealtimeConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutSec) * time.Second
}

// PingInterval returns the keepalive interval for websocket sessions.
func (r RealtimeConfig) PingInterval() time.Duration {
	return time.Duration(r.PingIntervalSec) * time.Second
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

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
