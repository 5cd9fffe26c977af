// Package config loads process configuration from the environment, with an
// optional YAML file for settings that do not fit in a variable.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Local snapshot backends.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds application configuration loaded from environment variables.
// Defaults suit local development.
type Config struct {
	AppName string
	Env     string // development, staging, production
	GinMode string
	// HTTPAddr is the serve listen address.
	HTTPAddr string

	// Local snapshot area
	LocalBackend string // sqlite, redis, memory
	SQLitePath   string
	LocalKey     string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration

	// Remote profile store
	RemoteBackend string // postgres, memory
	DatabaseURL   string // overrides the DB_* settings when set
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBMaxConns    int32
	DBMinConns    int32
	DBMaxConnLife time.Duration
	Migrate       bool
	NotifyChannel string

	// Avatars is the fallback avatar candidate list. Empty uses the built-in list.
	Avatars []string

	// ReadyTimeout bounds how long commands wait for a profile.
	ReadyTimeout time.Duration

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("invalid boolean for %s: %v, using default %v", key, err, def)
			return def
		}
		return b
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid int for %s: %v, using default %d", key, err, def)
			return def
		}
		return i
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using default %v", key, err, def)
			return def
		}
		return d
	}
	return def
}

func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			res = append(res, p)
		}
	}
	return res
}

// FromEnv loads configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		AppName:  getenv("APP_NAME", "profilesync"),
		Env:      getenv("APP_ENV", "development"),
		GinMode:  getenv("GIN_MODE", "release"),
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		LocalBackend: getenv("PROFILESYNC_LOCAL_BACKEND", BackendSQLite),
		SQLitePath:   getenv("PROFILESYNC_SQLITE_PATH", "profilesync.db"),
		LocalKey:     getenv("PROFILESYNC_LOCAL_KEY", "guestProfile"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getint("REDIS_DB", 0),
		RedisPrefix:   getenv("REDIS_PREFIX", "profilesync:"),
		RedisTTL:      getdur("REDIS_TTL", 0),

		RemoteBackend: getenv("PROFILESYNC_REMOTE_BACKEND", BackendMemory),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		DBHost:        getenv("DB_HOST", "localhost"),
		DBPort:        getenv("DB_PORT", "5432"),
		DBUser:        getenv("DB_USER", "postgres"),
		DBPassword:    getenv("DB_PASSWORD", "postgres"),
		DBName:        getenv("DB_NAME", "profilesync"),
		DBSSLMode:     getenv("DB_SSLMODE", "disable"),
		DBMaxConns:    int32(getint("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(getint("DB_MIN_CONNS", 1)),
		DBMaxConnLife: getdur("DB_MAX_CONN_LIFETIME", time.Hour),
		Migrate:       getbool("PROFILESYNC_MIGRATE", true),
		NotifyChannel: getenv("PROFILESYNC_NOTIFY_CHANNEL", "profile_changes"),

		Avatars: getlist("PROFILESYNC_AVATARS"),

		ReadyTimeout: getdur("PROFILESYNC_READY_TIMEOUT", 10*time.Second),
	}
}

// Load loads configuration from the environment and then applies the YAML
// file named by PROFILESYNC_CONFIG, if set.
func Load() (*Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("PROFILESYNC_CONFIG"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// File is the YAML overlay. Set fields replace the loaded values.
type File struct {
	Env          string   `yaml:"env"`
	HTTPAddr     string   `yaml:"http_addr"`
	LocalBackend string   `yaml:"local_backend"`
	SQLitePath   string   `yaml:"sqlite_path"`
	LocalKey     string   `yaml:"local_key"`
	Remote       string   `yaml:"remote_backend"`
	DatabaseURL  string   `yaml:"database_url"`
	Avatars      []string `yaml:"avatars"`
	ReadyTimeout string   `yaml:"ready_timeout"`
}

// ApplyFile reads the YAML file at path and overlays its set fields.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Env, f.Env)
	set(&c.HTTPAddr, f.HTTPAddr)
	set(&c.LocalBackend, f.LocalBackend)
	set(&c.SQLitePath, f.SQLitePath)
	set(&c.LocalKey, f.LocalKey)
	set(&c.RemoteBackend, f.Remote)
	set(&c.DatabaseURL, f.DatabaseURL)
	if len(f.Avatars) > 0 {
		c.Avatars = f.Avatars
	}
	if f.ReadyTimeout != "" {
		d, err := time.ParseDuration(f.ReadyTimeout)
		if err != nil {
			return fmt.Errorf("parse config file %s: ready_timeout: %w", path, err)
		}
		c.ReadyTimeout = d
	}
	c.ConfigFile = path
	return nil
}

// Validate checks backend names.
func (c *Config) Validate() error {
	switch c.LocalBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid local backend %q: must be one of sqlite, redis, memory", c.LocalBackend)
	}
	switch c.RemoteBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("invalid remote backend %q: must be one of postgres, memory", c.RemoteBackend)
	}
	if c.LocalKey == "" {
		return fmt.Errorf("local key must not be empty")
	}
	return nil
}

// PostgresDSN returns a DSN compatible with pgx.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}
