// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Drive listing source
	DriveID   string // shared drive id or root folder id
	DriveKind string // "shared" or "folder"

	// Tree sync
	SyncInterval   time.Duration
	EditCacheDelay time.Duration

	// Content cache backend ("memory", "postgres" or "s3", default: "memory")
	CacheBackend string
	DatabaseURL  string

	// S3 cache backend
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Drive API service account
	GoogleClientEmail string
	GooglePrivateKey  string // PEM, "\n" escapes accepted
	GoogleSubject     string // optional user to impersonate

	// Site login (optional — edit purges require it)
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	OIDCIssuerURL     string
	SessionSecret     string
	AdminPasswordHash string // bcrypt hash for the local admin fallback
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),

		DriveID:   envOr("DRIVE_ID", ""),
		DriveKind: envOr("DRIVE_TYPE", "shared"),

		SyncInterval:   envDuration("SYNC_INTERVAL", 15*time.Second),
		EditCacheDelay: envDuration("EDIT_CACHE_DELAY", time.Hour),

		CacheBackend: envOr("CACHE_BACKEND", "memory"),
		DatabaseURL:  envOr("DATABASE_URL", ""),

		S3Endpoint:  envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:    envOr("S3_BUCKET", "library-cache"),
		S3AccessKey: envOr("S3_ACCESS_KEY", ""),
		S3SecretKey: envOr("S3_SECRET_KEY", ""),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3UseSSL:    envBool("S3_USE_SSL", false),

		GoogleClientEmail: envOr("GOOGLE_CLIENT_EMAIL", ""),
		GooglePrivateKey:  strings.ReplaceAll(envOr("GOOGLE_PRIVATE_KEY", ""), `\n`, "\n"),
		GoogleSubject:     envOr("GOOGLE_SUBJECT", ""),

		OAuthClientID:     envOr("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: envOr("OAUTH_CLIENT_SECRET", ""),
		OAuthRedirectURL:  envOr("OAUTH_REDIRECT_URL", ""),
		OIDCIssuerURL:     envOr("OIDC_ISSUER_URL", "https://accounts.google.com"),
		SessionSecret:     envOr("SESSION_SECRET", ""),
		AdminPasswordHash: envOr("ADMIN_PASSWORD_HASH", ""),
	}

	if cfg.DriveID == "" {
		return nil, fmt.Errorf("DRIVE_ID is required")
	}
	if cfg.DriveKind != "shared" && cfg.DriveKind != "folder" {
		return nil, fmt.Errorf("DRIVE_TYPE must be %q or %q", "shared", "folder")
	}
	if cfg.CacheBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres cache backend")
	}
	if cfg.OAuthClientID != "" && cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required when OAuth login is enabled")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
