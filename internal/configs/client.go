package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds the terminal client's settings.
type ClientConfig struct {
	// ServerURL is the game server's HTTP address.
	ServerURL string `yaml:"server_url"`

	// StoragePath is the JSON file preferences are persisted to. Ignored when RedisAddr is set.
	StoragePath string `yaml:"storage_path"`

	// RedisAddr selects the Redis persister when non-empty.
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`

	// StrokeLimit caps the strokes held in memory; 0 keeps every stroke.
	StrokeLimit int `yaml:"stroke_limit"`

	// Profile used when signing in.
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Avatar   string `yaml:"avatar"`

	Development bool `yaml:"development"`
}

// DefaultClientConfig returns the settings used when no file is present.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:8080",
	}
}

// LoadClientConfig reads path over the defaults, then applies MASSKRIBBL_* environment overrides.
// A missing file is not an error.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.ServerURL = getEnv("MASSKRIBBL_SERVER_URL", cfg.ServerURL)
	cfg.StoragePath = getEnv("MASSKRIBBL_STORAGE_PATH", cfg.StoragePath)
	cfg.RedisAddr = getEnv("MASSKRIBBL_REDIS_ADDR", cfg.RedisAddr)
	cfg.Username = getEnv("MASSKRIBBL_USERNAME", cfg.Username)

	if v := os.Getenv("MASSKRIBBL_STROKE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MASSKRIBBL_STROKE_LIMIT: %w", err)
		}
		cfg.StrokeLimit = n
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	if cfg.StrokeLimit < 0 {
		return nil, fmt.Errorf("stroke_limit must not be negative, got %d", cfg.StrokeLimit)
	}

	return cfg, nil
}
