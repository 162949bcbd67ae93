/*
Package configs is responsible for loading and parsing the application's configuration settings.

The game server is configured from operating system environment variables, optionally seeded from
a .env file: the running environment, port, CORS allowed origins, JWT secret, and the optional
Postgres room log and S3 drawing archive. The terminal client reads a YAML file (see client.go).
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig contains all configuration parameters required for the server to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// S3 Storage Settings. An empty bucket disables the drawing archive.
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Database Settings. An empty DSN disables the room log.
	DatabaseDSN string
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// ArchiveEnabled reports whether finished drawings are uploaded to S3.
func (c *AppConfig) ArchiveEnabled() bool {
	return c.S3BucketName != ""
}

// LoadConfig reads and parses the server configuration from environment variables.
// Each file in envFiles (".env" when none are given) is loaded first if it exists; variables
// already set in the environment win over the file.
func LoadConfig(envFiles ...string) (*AppConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = getEnv("ENVIRONMENT", "development")

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		jwtSecret = "your_default_insecure_secret_key_change_me"
	}
	cfg.JWTSecret = jwtSecret

	// --- S3 Storage Settings ---
	cfg.S3BucketName = os.Getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3Region = getEnv("S3_REGION", "auto")
	cfg.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")

	if cfg.ArchiveEnabled() {
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT environment variable is required when S3_BUCKET_NAME is set")
		}
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET_NAME is set")
		}
	}

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
