package config

import (
	"context"
	"fmt"
	"strings"
	"time"
	// timezone names must resolve on minimal images without zoneinfo
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

const envPrefix = "WORKOUTSYNC_"

type Config struct {
	Environment string `toml:"environment" env:"ENVIRONMENT, overwrite"`
	Host        string `toml:"host" env:"HOST, overwrite"`
	Port        int    `toml:"port" env:"PORT, overwrite"`
	MetricsPort int    `toml:"metrics_port" env:"METRICS_PORT, overwrite"`

	AllowedOrigins    []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS, overwrite"`
	RequestsPerMinute int      `toml:"requests_per_minute" env:"REQUESTS_PER_MINUTE, overwrite"`

	// logging
	LogLevel      string `toml:"log_level" env:"LOG_LEVEL, overwrite"`
	LogsPath      string `toml:"logs_path" env:"LOGS_PATH, overwrite"`
	LogToStdout   bool   `toml:"log_to_stdout" env:"LOG_TO_STDOUT, overwrite"`
	LogFormatJSON bool   `toml:"log_format_json" env:"LOG_FORMAT_JSON, overwrite"`
	SentryEnabled bool   `toml:"sentry_enabled" env:"SENTRY_ENABLED, overwrite"`

	// local cache
	LocalCacheBackend string `toml:"local_cache_backend" env:"LOCAL_CACHE_BACKEND, overwrite"` // redis | memory | disk
	LocalCacheDiskDir string `toml:"local_cache_disk_dir" env:"LOCAL_CACHE_DISK_DIR, overwrite"`
	LocalCacheMemMB   int    `toml:"local_cache_mem_mb" env:"LOCAL_CACHE_MEM_MB, overwrite"`
	DeviceID          string `toml:"device_id" env:"DEVICE_ID, overwrite"`

	// redis
	RedisHost string `toml:"redis_host" env:"REDIS_HOST, overwrite"`
	RedisPort string `toml:"redis_port" env:"REDIS_PORT, overwrite"`
	// secrets come from the environment only
	RedisPassword string `toml:"-" env:"REDIS_PASSWORD"`

	// remote account store
	AccountServiceURL     string        `toml:"account_service_url" env:"ACCOUNT_SERVICE_URL, overwrite"`
	AccountServiceTimeout time.Duration `toml:"account_service_timeout" env:"ACCOUNT_SERVICE_TIMEOUT, overwrite"`
	AccountServicePort    int           `toml:"account_service_port" env:"ACCOUNT_SERVICE_PORT, overwrite"`
	AccountMetricsPort    int           `toml:"account_metrics_port" env:"ACCOUNT_METRICS_PORT, overwrite"`

	// outbox (write-behind queue in front of the account store)
	OutboxEnabled         bool          `toml:"outbox_enabled" env:"OUTBOX_ENABLED, overwrite"`
	OutboxMaxRetries      int           `toml:"outbox_max_retries" env:"OUTBOX_MAX_RETRIES, overwrite"`
	OutboxInitialInterval time.Duration `toml:"outbox_initial_interval" env:"OUTBOX_INITIAL_INTERVAL, overwrite"`
	OutboxPushesPerMinute int           `toml:"outbox_pushes_per_minute" env:"OUTBOX_PUSHES_PER_MINUTE, overwrite"`

	// progress
	Timezone           string `toml:"timezone" env:"TIMEZONE, overwrite"`
	MaxConflictRetries int    `toml:"max_conflict_retries" env:"MAX_CONFLICT_RETRIES, overwrite"`

	// postgres (account store service)
	PostgresHost     string `toml:"postgres_host" env:"POSTGRES_HOST, overwrite"`
	PostgresPort     string `toml:"postgres_port" env:"POSTGRES_PORT, overwrite"`
	PostgresDBName   string `toml:"postgres_db_name" env:"POSTGRES_DB_NAME, overwrite"`
	PostgresUser     string `toml:"postgres_user" env:"POSTGRES_USER, overwrite"`
	PostgresPassword string `toml:"-" env:"POSTGRES_PASSWORD"`

	HoneycombTracingEnabled bool `toml:"honeycomb_tracing_enabled" env:"HONEYCOMB_TRACING_ENABLED, overwrite"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML file, picks the section for env, applies WORKOUTSYNC_*
// environment overrides and fills in defaults.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return fromToml(&t, env, envconfig.OsLookuper())
}

func fromToml(t *Toml, env string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] missing", env)
	}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
	}); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9100
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 2112
	}
	if c.LocalCacheBackend == "" {
		c.LocalCacheBackend = "redis"
	}
	if c.LocalCacheMemMB == 0 {
		c.LocalCacheMemMB = 64
	}
	if c.DeviceID == "" {
		c.DeviceID = "default"
	}
	if c.RedisHost == "" {
		c.RedisHost = "localhost"
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
	if c.AccountServicePort == 0 {
		c.AccountServicePort = 9200
	}
	if c.AccountMetricsPort == 0 {
		c.AccountMetricsPort = 2113
	}
	if c.AccountServiceTimeout == 0 {
		c.AccountServiceTimeout = 10 * time.Second
	}
	if c.OutboxInitialInterval == 0 {
		c.OutboxInitialInterval = 500 * time.Millisecond
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.MaxConflictRetries == 0 {
		c.MaxConflictRetries = 3
	}
}

func (c *Config) validate() error {
	switch c.LocalCacheBackend {
	case "redis", "memory":
	case "disk":
		if c.LocalCacheDiskDir == "" {
			return fmt.Errorf("local cache backend [disk] needs local_cache_disk_dir")
		}
	default:
		return fmt.Errorf("unknown local cache backend: %s", c.LocalCacheBackend)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone [%s]: %w", c.Timezone, err)
	}
	if c.OutboxMaxRetries < 0 {
		return fmt.Errorf("outbox max retries must not be negative")
	}
	return nil
}

// Location returns the time zone used to compute calendar dates of the ledger.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
