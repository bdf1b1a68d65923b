package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Database backends.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Hosting modes.
const (
	HostingSelfHosted = "self-hosted"
	HostingManaged    = "managed"
)

// Config holds application configuration populated from environment variables.
type Config struct {
	// Core
	Port          int
	Environment   string // "development" or "production"
	LogLevel      string
	HostingMode   string // "self-hosted" or "managed"
	ServerAddress string // public address advertised to voice clients; optional
	ServerName    string // display name used when seeding a fresh database

	// Database
	DatabaseType    string // "postgres" or "sqlite"
	DatabaseURL     string // postgres connection string
	DatabasePath    string // sqlite file path
	DatabaseMaxConn int

	// Auth
	JWTSecret          string
	JWTAccessTTL       time.Duration
	CentralURL         string // central identity service; optional
	AllowLocalAccounts bool

	// Argon2 password hashing
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8

	// Gateway
	HeartbeatInterval time.Duration

	// Uploads / storage
	UploadDir          string
	MaxUploadSizeBytes int64
	StorageQuotaBytes  int64

	// S3 object storage; LocalStorage is used when Bucket is empty.
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// Voice
	MediasoupMinPort     int
	MediasoupMaxPort     int
	MaxVoiceParticipants int

	// Rate Limiting
	RateLimitAuthCount         int
	RateLimitAuthWindowSeconds int

	// CORS
	CORSAllowOrigins string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present. It returns an error if any
// variable is set but cannot be parsed, or if required values are missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}

	cfg := &Config{
		Port:          p.int("PORT", 4000),
		Environment:   envStr("ENVIRONMENT", "production"),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		HostingMode:   envStr("HOSTING_MODE", HostingSelfHosted),
		ServerAddress: envStr("SERVER_ADDRESS", ""),
		ServerName:    envStr("SERVER_NAME", "New Community"),

		DatabaseType:    envStr("DATABASE_TYPE", DatabaseSQLite),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		DatabasePath:    envStr("DATABASE_PATH", "data/ecto.db"),
		DatabaseMaxConn: p.int("DATABASE_MAX_CONNS", 25),

		JWTSecret:          envStr("JWT_SECRET", ""),
		JWTAccessTTL:       p.duration("JWT_ACCESS_TTL", 2*time.Hour),
		CentralURL:         envStr("CENTRAL_URL", ""),
		AllowLocalAccounts: p.bool("ALLOW_LOCAL_ACCOUNTS", true),

		Argon2Memory:      p.uint32("ARGON2_MEMORY", 65536),
		Argon2Iterations:  p.uint32("ARGON2_ITERATIONS", 3),
		Argon2Parallelism: p.uint8("ARGON2_PARALLELISM", 2),

		HeartbeatInterval: p.duration("HEARTBEAT_INTERVAL", 30*time.Second),

		UploadDir:          envStr("UPLOAD_DIR", "data/uploads"),
		MaxUploadSizeBytes: p.int64("MAX_UPLOAD_SIZE_BYTES", 50*1024*1024),
		StorageQuotaBytes:  p.int64("STORAGE_QUOTA_BYTES", 10*1024*1024*1024),

		S3Bucket:    envStr("S3_BUCKET", ""),
		S3Region:    envStr("S3_REGION", "us-east-1"),
		S3Endpoint:  envStr("S3_ENDPOINT", ""),
		S3AccessKey: envStr("S3_ACCESS_KEY", ""),
		S3SecretKey: envStr("S3_SECRET_KEY", ""),

		MediasoupMinPort:     p.int("MEDIASOUP_MIN_PORT", 40000),
		MediasoupMaxPort:     p.int("MEDIASOUP_MAX_PORT", 49999),
		MaxVoiceParticipants: p.int("MAX_VOICE_PARTICIPANTS", 25),

		RateLimitAuthCount:         p.int("RATE_LIMIT_AUTH_COUNT", 5),
		RateLimitAuthWindowSeconds: p.int("RATE_LIMIT_AUTH_WINDOW_SECONDS", 300),

		CORSAllowOrigins: envStr("CORS_ALLOW_ORIGINS", "*"),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsManaged returns true when running as a managed tenant.
func (c *Config) IsManaged() bool {
	return c.HostingMode == HostingManaged
}

// S3Configured returns true when an S3 bucket is set, selecting the S3 storage
// provider over local disk.
func (c *Config) S3Configured() bool {
	return c.S3Bucket != ""
}

// BodyLimitBytes returns the maximum request body size in bytes, derived from
// MaxUploadSizeBytes with a small margin for multipart framing overhead.
func (c *Config) BodyLimitBytes() int {
	return int(c.MaxUploadSizeBytes) + 1024*1024
}

func (c *Config) validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters"))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535"))
	}

	switch c.DatabaseType {
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when DATABASE_TYPE is postgres"))
		}
	case DatabaseSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, fmt.Errorf("DATABASE_PATH is required when DATABASE_TYPE is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_TYPE must be %q or %q", DatabasePostgres, DatabaseSQLite))
	}

	if c.DatabaseMaxConn < 1 {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_CONNS must be at least 1"))
	}

	if c.HostingMode != HostingSelfHosted && c.HostingMode != HostingManaged {
		errs = append(errs, fmt.Errorf("HOSTING_MODE must be %q or %q", HostingSelfHosted, HostingManaged))
	}

	if c.JWTAccessTTL < time.Second {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_TTL must be at least 1s"))
	}
	if c.HeartbeatInterval < time.Second {
		errs = append(errs, fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s"))
	}

	if c.Argon2Memory == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_MEMORY must be greater than 0"))
	}
	if c.Argon2Iterations == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_ITERATIONS must be greater than 0"))
	}
	if c.Argon2Parallelism == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_PARALLELISM must be greater than 0"))
	}

	if c.MaxUploadSizeBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE_BYTES must be at least 1"))
	}
	if c.StorageQuotaBytes < 1 {
		errs = append(errs, fmt.Errorf("STORAGE_QUOTA_BYTES must be at least 1"))
	}
	if c.UploadDir == "" {
		errs = append(errs, fmt.Errorf("UPLOAD_DIR is required"))
	}

	if c.S3Bucket != "" {
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			errs = append(errs, fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set"))
		}
	}

	if c.MediasoupMinPort < 1 || c.MediasoupMinPort > 65535 {
		errs = append(errs, fmt.Errorf("MEDIASOUP_MIN_PORT must be between 1 and 65535"))
	}
	if c.MediasoupMaxPort < 1 || c.MediasoupMaxPort > 65535 {
		errs = append(errs, fmt.Errorf("MEDIASOUP_MAX_PORT must be between 1 and 65535"))
	}
	if c.MediasoupMinPort > c.MediasoupMaxPort {
		errs = append(errs, fmt.Errorf("MEDIASOUP_MIN_PORT (%d) must not exceed MEDIASOUP_MAX_PORT (%d)",
			c.MediasoupMinPort, c.MediasoupMaxPort))
	}

	if c.MaxVoiceParticipants < 1 {
		errs = append(errs, fmt.Errorf("MAX_VOICE_PARTICIPANTS must be at least 1"))
	}

	if c.RateLimitAuthCount < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_AUTH_COUNT must be at least 1"))
	}
	if c.RateLimitAuthWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_AUTH_WINDOW_SECONDS must be at least 1"))
	}

	return errors.Join(errs...)
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) int64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected boolean)", key, v))
		return fallback
	}
	return b
}

func (p *parser) uint32(key string, fallback uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 32-bit integer)", key, v))
		return fallback
	}
	return uint32(n)
}

func (p *parser) uint8(key string, fallback uint8) uint8 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 8-bit integer)", key, v))
		return fallback
	}
	return uint8(n)
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected duration like \"24h\" or \"30m\")", key, v))
		return fallback
	}
	return d
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
