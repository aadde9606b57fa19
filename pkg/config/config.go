// Package config loads the proxy configuration from an optional config.yaml
// and DOGPROXY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/database"
)

// EnvPrefix is prepended to every environment override, e.g.
// DOGPROXY_CACHE_BACKEND=redis.
const EnvPrefix = "DOGPROXY"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type CacheConfig struct {
	Backend    string           `mapstructure:"backend"`
	TTLSeconds int              `mapstructure:"ttl_seconds"`
	Redis      RedisCacheConfig `mapstructure:"redis"`
}

type RedisCacheConfig struct {
	URL string `mapstructure:"url"`
}

type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// TTL returns the cache TTL as a duration; 0 means no expiry.
func (c CacheConfig) TTL() time.Duration {
	return cache.TTLFromSeconds(c.TTLSeconds)
}

// Load reads config.yaml from ./config, the working directory and any
// extra paths, then applies environment overrides. A missing file is not
// an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.redis.url", "redis://localhost:6379/0")

	v.SetDefault("upstream.base_url", "https://dog.ceo/api")
	v.SetDefault("upstream.timeout", "10s")

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "./data/dogs.sqlite")
	v.SetDefault("database.dsn", "")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q unknown", c.Log.Level))
	}

	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendMemory, cache.BackendDatabase:
	case cache.BackendRedis:
		if c.Cache.Redis.URL == "" {
			problems = append(problems, "cache.redis.url is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q unknown", c.Cache.Backend))
	}

	if c.Cache.TTLSeconds < 0 {
		problems = append(problems, "cache.ttl_seconds must not be negative")
	}

	if c.Upstream.BaseURL == "" {
		problems = append(problems, "upstream.base_url is required")
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, "upstream.timeout must be positive")
	}

	switch strings.ToLower(c.Database.Driver) {
	case database.DriverSQLite:
	case database.DriverPostgres:
		if c.Database.DSN == "" {
			problems = append(problems, "database.dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q unknown", c.Database.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}
