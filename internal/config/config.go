// Package config loads the process-wide Embucket configuration. It
// mirrors the teacher's viper-based pattern: a package-level singleton
// populated once via Load, read thereafter via Get.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// MemPoolType selects the execution memory pool strategy.
type MemPoolType string

const (
	MemPoolFair   MemPoolType = "Fair"
	MemPoolGreedy MemPoolType = "Greedy"
)

// Config holds all configuration for the Embucket process.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	SQL struct {
		ParserDialect      string `mapstructure:"parser_dialect"`
		QueryTimeoutSecs   int    `mapstructure:"query_timeout_secs"`
		MaxConcurrentLevel int    `mapstructure:"max_concurrency_level"`
	} `mapstructure:"sql"`

	Memory struct {
		PoolType              MemPoolType `mapstructure:"pool_type"`
		PoolSizeMB            int         `mapstructure:"pool_size_mb"`
		EnableTrackConsumers  bool        `mapstructure:"enable_track_consumers_pool"`
		DiskPoolSizeMB        int         `mapstructure:"disk_pool_size_mb"`
	} `mapstructure:"memory"`

	Storage struct {
		// Backend selects the C1 durable KV store: "memory" (volatile,
		// for dev/test) or "file" (an OpenLogStore rooted at Path).
		Backend string `mapstructure:"backend"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"storage"`

	Catalog struct {
		MaxConcurrentTableFetches int `mapstructure:"max_concurrent_table_fetches"`
		RefreshIntervalSecs       int `mapstructure:"refresh_interval_secs"`
	} `mapstructure:"catalog"`

	Session struct {
		InactivitySecs    int `mapstructure:"inactivity_secs"`
		IdleShutdownSecs  int `mapstructure:"idle_shutdown_secs"`
		SweepIntervalSecs int `mapstructure:"sweep_interval_secs"`
	} `mapstructure:"session"`

	AWS struct {
		DefaultRegion     string `mapstructure:"default_region"`
		ConnectTimeoutSec int    `mapstructure:"connect_timeout_sec"`
		RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
	} `mapstructure:"aws"`

	Identifiers struct {
		// NormalizationPolicy selects how identifiers are case-folded at
		// the boundary: "lower" (Snowflake-unquoted default) or "exact".
		NormalizationPolicy string `mapstructure:"normalization_policy"`
	} `mapstructure:"identifiers"`

	Auth struct {
		// JWTSecret signs the session JWTs internal/api/auth mints.
		// Whenever this is empty, WithAuth runs in anonymous mode (no
		// token is required) and /auth/login signs its tokens with a
		// random per-process key.
		JWTSecret     string `mapstructure:"jwt_secret"`
		TokenTTLSecs  int    `mapstructure:"token_ttl_secs"`
	} `mapstructure:"auth"`

	RateLimit struct {
		Enabled           bool `mapstructure:"enabled"`
		QueryLimit        int  `mapstructure:"query_limit"`
		QueryWindowSecs   int  `mapstructure:"query_window_secs"`
	} `mapstructure:"rate_limit"`

	EmbucketVersion string `mapstructure:"embucket_version"`
}

// GlobalSettings is the smaller, fully-immutable object-store timeout
// bundle referenced by spec §9's "one process-wide settings object"
// design note. It is built once from Config at startup and never
// reloaded for the life of the process.
type GlobalSettings struct {
	ConnectTimeoutSec int
	RequestTimeoutSec int
	DefaultRegion     string
}

var (
	config         *Config
	globalSettings *GlobalSettings
	once           sync.Once
	settingsOnce   sync.Once
)

// Load initializes and loads the config; subsequent calls are no-ops
// that return the already-loaded config (idempotent, like the teacher).
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		err = loadConfig(configPath)
	})
	return config, err
}

// Get returns the current config, panicking if it has not been loaded —
// matching the teacher's fail-fast convention for a required singleton.
func Get() *Config {
	if config == nil {
		panic("config is not loaded")
	}
	return config
}

// InitGlobalSettings builds the immutable GlobalSettings once from the
// loaded Config. Safe to call multiple times; only the first call has
// effect.
func InitGlobalSettings() *GlobalSettings {
	settingsOnce.Do(func() {
		cfg := Get()
		globalSettings = &GlobalSettings{
			ConnectTimeoutSec: cfg.AWS.ConnectTimeoutSec,
			RequestTimeoutSec: cfg.AWS.RequestTimeoutSec,
			DefaultRegion:     cfg.AWS.DefaultRegion,
		}
	})
	return globalSettings
}

// Settings returns the process-wide GlobalSettings, panicking if it has
// not been initialized.
func Settings() *GlobalSettings {
	if globalSettings == nil {
		panic("global settings are not initialized")
	}
	return globalSettings
}

func loadConfig(configPath string) error {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("EMBUCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("sql.parser_dialect")
	v.BindEnv("sql.query_timeout_secs")
	v.BindEnv("sql.max_concurrency_level")
	v.BindEnv("memory.pool_type")
	v.BindEnv("memory.pool_size_mb")
	v.BindEnv("memory.enable_track_consumers_pool")
	v.BindEnv("memory.disk_pool_size_mb")
	v.BindEnv("storage.backend")
	v.BindEnv("storage.path")
	v.BindEnv("catalog.max_concurrent_table_fetches")
	v.BindEnv("session.inactivity_secs")
	v.BindEnv("session.idle_shutdown_secs")
	v.BindEnv("aws.default_region")
	v.BindEnv("auth.jwt_secret")
	v.BindEnv("auth.token_ttl_secs")
	v.BindEnv("embucket_version")

	setDefaults(v)

	config = &Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return validate(config)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sql.parser_dialect", "snowflake")
	v.SetDefault("sql.query_timeout_secs", 172800)
	v.SetDefault("sql.max_concurrency_level", 10)

	v.SetDefault("memory.pool_type", string(MemPoolFair))
	v.SetDefault("memory.pool_size_mb", 0)
	v.SetDefault("memory.enable_track_consumers_pool", false)
	v.SetDefault("memory.disk_pool_size_mb", 0)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "./embucket-data")

	v.SetDefault("catalog.max_concurrent_table_fetches", 10)
	v.SetDefault("catalog.refresh_interval_secs", 60)

	// SESSION_INACTIVITY_EXPIRATION_SECONDS default per spec §4.6.1.
	v.SetDefault("session.inactivity_secs", 300)
	v.SetDefault("session.idle_shutdown_secs", 3600)
	v.SetDefault("session.sweep_interval_secs", 1)

	v.SetDefault("aws.default_region", "us-east-2")
	v.SetDefault("aws.connect_timeout_sec", 5)
	v.SetDefault("aws.request_timeout_sec", 30)

	v.SetDefault("identifiers.normalization_policy", "lower")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_secs", 3600)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.query_limit", 100)
	v.SetDefault("rate_limit.query_window_secs", 60)

	v.SetDefault("embucket_version", "dev")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	if cfg.SQL.MaxConcurrentLevel < 1 {
		return fmt.Errorf("invalid sql.max_concurrency_level: must be at least 1")
	}
	if cfg.SQL.QueryTimeoutSecs < 1 {
		return fmt.Errorf("invalid sql.query_timeout_secs: must be at least 1")
	}

	switch cfg.Memory.PoolType {
	case MemPoolFair, MemPoolGreedy, "":
	default:
		return fmt.Errorf("invalid memory.pool_type: %s", cfg.Memory.PoolType)
	}

	switch cfg.Storage.Backend {
	case "memory", "file":
	default:
		return fmt.Errorf("invalid storage.backend: %s", cfg.Storage.Backend)
	}

	if cfg.Catalog.MaxConcurrentTableFetches < 1 {
		return fmt.Errorf("invalid catalog.max_concurrent_table_fetches: must be at least 1")
	}

	switch strings.ToLower(cfg.Identifiers.NormalizationPolicy) {
	case "lower", "exact":
	default:
		return fmt.Errorf("invalid identifiers.normalization_policy: %s", cfg.Identifiers.NormalizationPolicy)
	}

	return nil
}

// resetForTest clears the singletons so tests can reload config with a
// different file/environment. Not exported; test-only helper.
func resetForTest() {
	config = nil
	globalSettings = nil
	once = sync.Once{}
	settingsOnce = sync.Once{}
}
