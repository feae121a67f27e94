package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvDataDir       = "DMSYNC_DATA_DIR"
	EnvLogLevel      = "DMSYNC_LOG_LEVEL"
	EnvTokenSecret   = "DMSYNC_TOKEN_SECRET"
	EnvRedisEnabled  = "DMSYNC_REDIS_ENABLED"
	EnvRedisAddr     = "DMSYNC_REDIS_ADDR"
	EnvRedisPassword = "DMSYNC_REDIS_PASSWORD"
	EnvWriteTimeout  = "DMSYNC_WRITE_TIMEOUT"
)

// LoadDotEnv loads .env files with priority: .env.local > .env.
// godotenv.Load does not overwrite variables that are already set, so the
// process environment always wins. Returns the files actually loaded.
func LoadDotEnv(dir string) []string {
	var loaded []string
	for _, name := range []string{".env.local", ".env"} {
		f := name
		if dir != "" {
			f = dir + string(os.PathSeparator) + name
		}
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// ApplyEnv overrides cfg fields from DMSYNC_* environment variables.
// Malformed values are ignored.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvTokenSecret); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv(EnvRedisEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv(EnvWriteTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.WriteTimeout = Duration{d}
		}
	}
}
