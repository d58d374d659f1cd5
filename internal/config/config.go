// Package config loads ~/.huddle/config.toml, overlays HUDDLE_* environment
// variables (optionally read from a .env file) and validates the result.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. HUDDLE_SERVER_LISTEN_ADDR.
const EnvPrefix = "HUDDLE"

// Config represents the global config.toml.
type Config struct {
	DefaultInstance string       `toml:"default_instance,omitempty" envconfig:"DEFAULT_INSTANCE" validate:"omitempty,max=64"`
	Server          ServerConfig `toml:"server" envconfig:"SERVER"`
}

// ServerConfig holds the settings of huddled.
type ServerConfig struct {
	ListenAddr        string        `toml:"listen_addr,omitempty" envconfig:"LISTEN_ADDR" validate:"required,hostname_port"`
	JWTSecret         string        `toml:"jwt_secret,omitempty" envconfig:"JWT_SECRET" validate:"required,min=16"`
	TokenTTL          time.Duration `toml:"token_ttl,omitempty" envconfig:"TOKEN_TTL" validate:"gt=0"`
	ReadLimit         int64         `toml:"read_limit,omitempty" envconfig:"READ_LIMIT" validate:"gte=512"`
	SendBuffer        int           `toml:"send_buffer,omitempty" envconfig:"SEND_BUFFER" validate:"gte=1,lte=65536"`
	EventRate         float64       `toml:"event_rate,omitempty" envconfig:"EVENT_RATE" validate:"gte=0"`
	EventBurst        int           `toml:"event_burst,omitempty" envconfig:"EVENT_BURST" validate:"gte=1"`
	AllowedOrigins    []string      `toml:"allowed_origins,omitempty" envconfig:"ALLOWED_ORIGINS" validate:"dive,required"`
	MaxUploadBytes    int64         `toml:"max_upload_bytes,omitempty" envconfig:"MAX_UPLOAD_BYTES" validate:"gt=0"`
	NotifyJoinRefusal bool          `toml:"notify_join_refusal,omitempty" envconfig:"NOTIFY_JOIN_REFUSAL"`
	DrainTimeout      time.Duration `toml:"drain_timeout,omitempty" envconfig:"DRAIN_TIMEOUT" validate:"gt=0"`
}

// Defaults fills every zero-valued server setting. The JWT secret has no
// default; see EnsureSecret.
func (c *Config) Defaults() {
	s := &c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = "127.0.0.1:7420"
	}
	if s.TokenTTL == 0 {
		s.TokenTTL = 30 * 24 * time.Hour
	}
	if s.ReadLimit == 0 {
		s.ReadLimit = 16 << 10
	}
	if s.SendBuffer == 0 {
		s.SendBuffer = 256
	}
	if s.EventRate == 0 {
		s.EventRate = 20
	}
	if s.EventBurst == 0 {
		s.EventBurst = 40
	}
	if s.MaxUploadBytes == 0 {
		s.MaxUploadBytes = 10 << 20
	}
	if s.DrainTimeout == 0 {
		s.DrainTimeout = 10 * time.Second
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEffective reads the file at path (a missing file is an empty config),
// loads envFile into the environment when it exists, applies HUDDLE_*
// overrides, fills defaults and validates.
func LoadEffective(path, envFile string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureSecret writes a random JWT secret to the config file when it has none,
// so tokens survive restarts. It reports whether the file was changed.
func EnsureSecret(path string) (bool, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	if cfg.Server.JWTSecret != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generate secret: %w", err)
	}
	cfg.Server.JWTSecret = hex.EncodeToString(buf)
	if err := Save(path, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
