package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB         DBConfig
	Storage    StorageConfig
	MinIO      MinIOConfig
	S3         S3Config
	JWT        JWTConfig
	Server     ServerConfig
	Quota      QuotaConfig
	Reconciler ReconcilerConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// StorageConfig selects which object-store backend backs file contents.
type StorageConfig struct {
	Backend string // "minio" or "s3"
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
	// ClientURL is the public frontend origin, used when building share links
	// and for CORS.
	ClientURL string
	// SearchCacheTTL bounds how long search responses may be served from cache.
	SearchCacheTTL time.Duration
}

type QuotaConfig struct {
	// DefaultLimitBytes is applied to newly registered users.
	DefaultLimitBytes int64
}

type ReconcilerConfig struct {
	Interval time.Duration
	// GracePeriod is how old an orphaned object must be before the sweep
	// removes it, so in-flight uploads are never collected.
	GracePeriod time.Duration
}

func Load() *Config {
	// A missing .env is fine; the environment may be set by the process manager.
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "clouddrive"),
			Password: getEnv("DB_PASSWORD", "clouddrive_secret"),
			Name:     getEnv("DB_NAME", "clouddrive"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "minio"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "clouddrive"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "clouddrive_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "clouddrive"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", "s3.amazonaws.com"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "clouddrive"),
			UseSSL:    getEnvAsBool("S3_USE_SSL", true),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			ClientURL:      getEnv("CLIENT_URL", "http://localhost:3000"),
			SearchCacheTTL: getEnvAsDuration("SEARCH_CACHE_TTL", 5*time.Minute),
		},
		Quota: QuotaConfig{
			DefaultLimitBytes: getEnvAsInt64("QUOTA_DEFAULT_LIMIT_BYTES", 5*1024*1024*1024),
		},
		Reconciler: ReconcilerConfig{
			Interval:    getEnvAsDuration("RECONCILER_INTERVAL", 1*time.Hour),
			GracePeriod: getEnvAsDuration("RECONCILER_GRACE_PERIOD", 24*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
