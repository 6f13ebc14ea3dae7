// Package config loads server settings from defaults, an optional TOML file,
// a .env file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Config holds all runtime settings.
type Config struct {
	Port            string        `toml:"port"`
	Driver          string        `toml:"driver"`
	CORSOrigins     []string      `toml:"cors_origins"`
	ShutdownTimeout time.Duration `toml:"-"`

	Mongo  MongoConfig  `toml:"mongo"`
	SQLite SQLiteConfig `toml:"sqlite"`
	Log    LogConfig    `toml:"log"`
}

// MongoConfig describes how to reach the document store.
type MongoConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Database string `toml:"database"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:            "5000",
		Driver:          DriverMongo,
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 10 * time.Second,
		Mongo: MongoConfig{
			Host:     "localhost:27017",
			Database: "manage-application",
		},
		SQLite: SQLiteConfig{Path: "./data/taskboard.db"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path names an optional TOML file; an empty
// path falls back to CONFIG_FILE. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	// .env values never override variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Driver, "STORE_DRIVER")
	setString(&cfg.Mongo.URI, "MONGO_URI")
	setString(&cfg.Mongo.User, "DB_USER")
	setString(&cfg.Mongo.Password, "DB_PASS")
	setString(&cfg.Mongo.Host, "DB_HOST")
	setString(&cfg.Mongo.Database, "DB_NAME")
	setString(&cfg.SQLite.Path, "DB_PATH")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			secs, convErr := strconv.Atoi(v)
			if convErr != nil {
				return fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q: %w", v, err)
			}
			d = time.Duration(secs) * time.Second
		}
		cfg.ShutdownTimeout = d
	}

	return nil
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q: must be %q or %q", c.Driver, DriverMongo, DriverSQLite)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Driver == DriverMongo && c.Mongo.Database == "" {
		return errors.New("mongo database name is required")
	}
	if c.Driver == DriverSQLite && c.SQLite.Path == "" {
		return errors.New("sqlite path is required")
	}

	return nil
}

// ConnectionString returns the MongoDB connection string. An explicit URI
// wins; with credentials the SRV form is used, otherwise a plain host.
func (m MongoConfig) ConnectionString() string {
	if m.URI != "" {
		return m.URI
	}
	if m.User != "" {
		u := url.URL{
			Scheme:   "mongodb+srv",
			User:     url.UserPassword(m.User, m.Password),
			Host:     m.Host,
			Path:     "/",
			RawQuery: "retryWrites=true&w=majority",
		}
		return u.String()
	}
	return "mongodb://" + m.Host
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
