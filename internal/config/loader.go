package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/example/migren/internal/logging"
)

// Setting keys, shared by flags and MIGREN_* environment variables.
const (
	KeyDatabaseURL = "database-url"
	KeyDirectory   = "directory"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
)

// EnvPrefix prefixes every environment variable read through viper.
const EnvPrefix = "MIGREN"

// ErrDatabaseURLMissing is returned when a command needs a database but none is configured.
var ErrDatabaseURLMissing = errors.New("required setting is missing: database-url (MIGREN_DATABASE_URL or DATABASE_URL)")

// Config captures flag and environment driven settings for migren.
type Config struct {
	DatabaseURL string
	Directory   string
	LogLevel    slog.Level
	LogFormat   string
}

// NewViper returns a viper instance reading MIGREN_* environment variables,
// with dashes in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration from v.
//
// Optional fields fall back to defaults; values that do not parse are
// collected and reported together. The database URL is not required here
// because some commands never connect; see RequireDatabase.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
	}

	invalid := make([]string, 0, 2)

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(KeyDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}

	if dir := strings.TrimSpace(v.GetString(KeyDirectory)); dir != "" {
		cfg.Directory = dir
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Directory = wd
	}

	if levelValue := strings.TrimSpace(v.GetString(KeyLogLevel)); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, KeyLogLevel)
		} else {
			cfg.LogLevel = level
		}
	}

	if format := strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))); format != "" {
		if format != "text" && format != "json" {
			invalid = append(invalid, KeyLogFormat)
		} else {
			cfg.LogFormat = format
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid setting values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// RequireDatabase reports ErrDatabaseURLMissing when no database is configured.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLMissing
	}
	return nil
}
