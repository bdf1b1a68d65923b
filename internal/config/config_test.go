package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv blanks every variable Load reads so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "ENVIRONMENT", "LOG_LEVEL", "HOSTING_MODE", "SERVER_ADDRESS",
		"DATABASE_TYPE", "DATABASE_URL", "DATABASE_PATH", "DATABASE_MAX_CONNS",
		"JWT_SECRET", "JWT_ACCESS_TTL", "CENTRAL_URL", "ALLOW_LOCAL_ACCOUNTS",
		"ARGON2_MEMORY", "ARGON2_ITERATIONS", "ARGON2_PARALLELISM",
		"HEARTBEAT_INTERVAL",
		"UPLOAD_DIR", "MAX_UPLOAD_SIZE_BYTES", "STORAGE_QUOTA_BYTES",
		"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
		"MEDIASOUP_MIN_PORT", "MEDIASOUP_MAX_PORT", "MAX_VOICE_PARTICIPANTS",
		"RATE_LIMIT_AUTH_COUNT", "RATE_LIMIT_AUTH_WINDOW_SECONDS",
		"CORS_ALLOW_ORIGINS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

// TestLoadDefaults is not t.Parallel because it mutates process-wide environment variables.
func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Port)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "production")
	}
	if cfg.HostingMode != HostingSelfHosted {
		t.Errorf("HostingMode = %q, want %q", cfg.HostingMode, HostingSelfHosted)
	}

	if cfg.DatabaseType != DatabaseSQLite {
		t.Errorf("DatabaseType = %q, want %q", cfg.DatabaseType, DatabaseSQLite)
	}
	if cfg.DatabasePath != "data/ecto.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "data/ecto.db")
	}
	if cfg.DatabaseMaxConn != 25 {
		t.Errorf("DatabaseMaxConn = %d, want 25", cfg.DatabaseMaxConn)
	}

	if cfg.JWTAccessTTL != 2*time.Hour {
		t.Errorf("JWTAccessTTL = %v, want 2h", cfg.JWTAccessTTL)
	}
	if !cfg.AllowLocalAccounts {
		t.Error("AllowLocalAccounts = false, want true")
	}

	if cfg.Argon2Memory != 65536 {
		t.Errorf("Argon2Memory = %d, want 65536", cfg.Argon2Memory)
	}
	if cfg.Argon2Iterations != 3 {
		t.Errorf("Argon2Iterations = %d, want 3", cfg.Argon2Iterations)
	}
	if cfg.Argon2Parallelism != 2 {
		t.Errorf("Argon2Parallelism = %d, want 2", cfg.Argon2Parallelism)
	}

	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}

	if cfg.UploadDir != "data/uploads" {
		t.Errorf("UploadDir = %q, want %q", cfg.UploadDir, "data/uploads")
	}
	if cfg.MaxUploadSizeBytes != 50*1024*1024 {
		t.Errorf("MaxUploadSizeBytes = %d, want %d", cfg.MaxUploadSizeBytes, 50*1024*1024)
	}
	if cfg.StorageQuotaBytes != 10*1024*1024*1024 {
		t.Errorf("StorageQuotaBytes = %d, want %d", cfg.StorageQuotaBytes, int64(10*1024*1024*1024))
	}

	if cfg.MediasoupMinPort != 40000 || cfg.MediasoupMaxPort != 49999 {
		t.Errorf("Mediasoup ports = %d..%d, want 40000..49999", cfg.MediasoupMinPort, cfg.MediasoupMaxPort)
	}
	if cfg.MaxVoiceParticipants != 25 {
		t.Errorf("MaxVoiceParticipants = %d, want 25", cfg.MaxVoiceParticipants)
	}

	if cfg.RateLimitAuthCount != 5 {
		t.Errorf("RateLimitAuthCount = %d, want 5", cfg.RateLimitAuthCount)
	}
}

func TestLoadValidationRequiresJWTSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for missing JWT_SECRET")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("error %q does not mention JWT_SECRET", err.Error())
	}
}

func TestLoadValidationShortJWTSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for short JWT_SECRET")
	}
	if !strings.Contains(err.Error(), "at least 32") {
		t.Errorf("error %q does not mention the length requirement", err.Error())
	}
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_TYPE", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error %q does not mention DATABASE_URL", err.Error())
	}
}

func TestLoadUnknownDatabaseType(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_TYPE", "oracle")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for DATABASE_TYPE")
	}
	if !strings.Contains(err.Error(), "DATABASE_TYPE") {
		t.Errorf("error %q does not mention DATABASE_TYPE", err.Error())
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("HOSTING_MODE", "managed")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://ecto:pw@localhost:5432/ecto?sslmode=disable")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("CENTRAL_URL", "https://central.example.com")
	t.Setenv("ALLOW_LOCAL_ACCOUNTS", "false")
	t.Setenv("MAX_UPLOAD_SIZE_BYTES", "1048576")
	t.Setenv("MAX_VOICE_PARTICIPANTS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	if !cfg.IsManaged() {
		t.Error("IsManaged() = false, want true")
	}
	if cfg.DatabaseType != DatabasePostgres {
		t.Errorf("DatabaseType = %q, want %q", cfg.DatabaseType, DatabasePostgres)
	}
	if cfg.JWTAccessTTL != 30*time.Minute {
		t.Errorf("JWTAccessTTL = %v, want 30m", cfg.JWTAccessTTL)
	}
	if cfg.CentralURL != "https://central.example.com" {
		t.Errorf("CentralURL = %q, want the configured URL", cfg.CentralURL)
	}
	if cfg.AllowLocalAccounts {
		t.Error("AllowLocalAccounts = true, want false")
	}
	if cfg.MaxUploadSizeBytes != 1048576 {
		t.Errorf("MaxUploadSizeBytes = %d, want 1048576", cfg.MaxUploadSizeBytes)
	}
	if cfg.MaxVoiceParticipants != 8 {
		t.Errorf("MaxVoiceParticipants = %d, want 8", cfg.MaxVoiceParticipants)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "PORT") {
		t.Errorf("error %q does not mention PORT", err.Error())
	}
	if !strings.Contains(err.Error(), "not-a-number") {
		t.Errorf("error %q does not include the invalid value", err.Error())
	}
}

func TestLoadMultipleErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "abc")
	t.Setenv("DATABASE_MAX_CONNS", "xyz")
	t.Setenv("ALLOW_LOCAL_ACCOUNTS", "nope")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want multiple parse errors")
	}

	errStr := err.Error()
	for _, want := range []string{"PORT", "DATABASE_MAX_CONNS", "ALLOW_LOCAL_ACCOUNTS"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error missing %s, got: %s", want, errStr)
		}
	}
}

func TestLoadVoicePortRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MEDIASOUP_MIN_PORT", "50000")
	t.Setenv("MEDIASOUP_MAX_PORT", "40000")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want port range validation error")
	}
	if !strings.Contains(err.Error(), "MEDIASOUP_MIN_PORT") {
		t.Errorf("error %q does not mention MEDIASOUP_MIN_PORT", err.Error())
	}
}

func TestBodyLimitBytes(t *testing.T) {
	cfg := &Config{MaxUploadSizeBytes: 10 * 1024 * 1024}
	want := 11 * 1024 * 1024
	if got := cfg.BodyLimitBytes(); got != want {
		t.Errorf("BodyLimitBytes() = %d, want %d", got, want)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"production", false},
		{"", false},
		{"staging", false},
	}
	for _, tt := range tests {
		cfg := &Config{Environment: tt.env}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment() with env=%q = %v, want %v", tt.env, got, tt.want)
		}
	}
}
