package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zoom      ZoomConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Hosts     HostsConfig
	Thumbnail ThumbnailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/recordings?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds operator token signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// ZoomConfig holds provider API and webhook credentials.
type ZoomConfig struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	APIBaseURL    string
	TokenURL      string
	// SyncUserID is the user whose cloud recordings the date-range sync
	// lists ("me" under server-to-server OAuth).
	SyncUserID string
}

// StorageConfig holds R2 (S3-compatible) object storage settings.
type StorageConfig struct {
	Endpoint             string
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Bucket               string
	WorkerURL            string
	CustomDomain         string
	PresignExpireMinutes int
}

// Configured reports whether object storage is usable. The server still
// accepts webhooks without it; processing stays queued until storage is up.
func (c StorageConfig) Configured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// PipelineConfig tunes the background processing workers and jobs.
type PipelineConfig struct {
	MaxConcurrent          int
	DownloadTimeoutSeconds int
	StuckAfterMinutes      int
	StuckCheckMinutes      int
	SyncDays               int
	RetentionDays          int // 0 disables retention cleanup
}

// HostsConfig tunes the host allowlist filter.
type HostsConfig struct {
	// AllowWhenUnconfigured admits any host while the allowed_hosts table
	// is completely empty. Off by default.
	AllowWhenUnconfigured bool
}

// ThumbnailConfig holds the ffmpeg/ffprobe binary locations.
type ThumbnailConfig struct {
	FFmpegPath  string
	FFprobePath string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/recordings?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "recordings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Zoom: ZoomConfig{
			AccountID:     getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:      getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret:  getEnv("ZOOM_CLIENT_SECRET", ""),
			WebhookSecret: getEnv("ZOOM_WEBHOOK_SECRET", ""),
			APIBaseURL:    getEnv("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"),
			TokenURL:      getEnv("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token"),
			SyncUserID:    getEnv("ZOOM_SYNC_USER_ID", "me"),
		},
		Storage: StorageConfig{
			Endpoint:             getEnv("R2_ENDPOINT", ""),
			Region:               getEnv("R2_REGION", "auto"),
			AccessKeyID:          getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:               getEnv("R2_BUCKET", ""),
			WorkerURL:            getEnv("R2_WORKER_URL", ""),
			CustomDomain:         getEnv("R2_CUSTOM_DOMAIN", ""),
			PresignExpireMinutes: getEnvInt("R2_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:          getEnvInt("PIPELINE_MAX_CONCURRENT", 3),
			DownloadTimeoutSeconds: getEnvInt("PIPELINE_DOWNLOAD_TIMEOUT_SEC", 300),
			StuckAfterMinutes:      getEnvInt("PIPELINE_STUCK_AFTER_MIN", 120),
			StuckCheckMinutes:      getEnvInt("PIPELINE_STUCK_CHECK_MIN", 10),
			SyncDays:               getEnvInt("PIPELINE_SYNC_DAYS", 7),
			RetentionDays:          getEnvInt("PIPELINE_RETENTION_DAYS", 0),
		},
		Hosts: HostsConfig{
			AllowWhenUnconfigured: getEnvBool("HOSTS_ALLOW_WHEN_UNCONFIGURED", false),
		},
		Thumbnail: ThumbnailConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
