package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.dmsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	// DataDir holds the shared sqlite backend. Empty means the base directory.
	DataDir string `toml:"data_dir"`

	Log   Log   `toml:"log"`
	Auth  Auth  `toml:"auth"`
	Sync  Sync  `toml:"sync"`
	Redis Redis `toml:"redis"`
}

// Log configures the zap logger.
type Log struct {
	Level string `toml:"level"`
}

// Auth configures the local identity provider.
type Auth struct {
	// TokenSecret signs session tokens. Empty means a generated per-data-dir key.
	TokenSecret string   `toml:"token_secret"`
	TokenTTL    Duration `toml:"token_ttl"`
}

// Sync configures the synchronization core and the store watcher.
type Sync struct {
	WriteTimeout     Duration `toml:"write_timeout"`
	SubscribeTimeout Duration `toml:"subscribe_timeout"`
	BackoffInitial   Duration `toml:"backoff_initial"`
	BackoffMax       Duration `toml:"backoff_max"`
	ExternalPoll     Duration `toml:"external_poll"`
}

// Redis configures the optional presence tracker.
type Redis struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PresenceTTL Duration `toml:"presence_ttl"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Log:            Log{Level: "info"},
		Auth:           Auth{TokenTTL: Duration{30 * 24 * time.Hour}},
		Sync: Sync{
			WriteTimeout:     Duration{10 * time.Second},
			SubscribeTimeout: Duration{15 * time.Second},
			BackoffInitial:   Duration{500 * time.Millisecond},
			BackoffMax:       Duration{30 * time.Second},
			ExternalPoll:     Duration{time.Second},
		},
		Redis: Redis{
			Addr:        "localhost:6379",
			PresenceTTL: Duration{time.Minute},
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error if
// the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default when the file
// does not exist. Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
