package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-reliability/internal/utils"
)

const envPrefix = "MIRADOR_RELIABILITY_"

// Config captures the settings required to boot the reliability service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Cache     CacheConfig     `yaml:"cache"`
	Workers   WorkersConfig   `yaml:"workers"`
	Settings  SettingsConfig  `yaml:"settings"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// AnalyticsConfig configures access to the analytics backend.
type AnalyticsConfig struct {
	BaseURL  string         `yaml:"baseURL"`
	APIKey   string         `yaml:"apiKey"`
	Timeout  time.Duration  `yaml:"timeout"`
	GroupTTL time.Duration  `yaml:"groupTTL"`
	Paths    AnalyticsPaths `yaml:"paths"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// AnalyticsPaths are the backend routes relative to BaseURL.
type AnalyticsPaths struct {
	Views            string `yaml:"views"`
	RegressionWindow string `yaml:"regressionWindow"`
	Regression       string `yaml:"regression"`
	Graph            string `yaml:"graph"`
	Events           string `yaml:"events"`
	Transactions     string `yaml:"transactions"`
	Deployments      string `yaml:"deployments"`
	Groups           string `yaml:"groups"`
}

// BreakerConfig tunes the circuit breaker in front of the analytics backend.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"maxRequests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"minRequests"`
	FailureRatio float64       `yaml:"failureRatio"`
}

// CacheConfig groups the in-process memo caches and the optional shared Redis cache.
type CacheConfig struct {
	Redis           RedisConfig   `yaml:"redis"`
	JanitorInterval time.Duration `yaml:"janitorInterval"`
	Views           MemoConfig    `yaml:"views"`
	Events          MemoConfig    `yaml:"events"`
	Graphs          MemoConfig    `yaml:"graphs"`
	Transactions    MemoConfig    `yaml:"transactions"`
	Windows         MemoConfig    `yaml:"regressionWindows"`
	Reports         MemoConfig    `yaml:"reports"`
	Settings        MemoConfig    `yaml:"settings"`
}

// MemoConfig sizes and expires one in-process cache.
type MemoConfig struct {
	MaxEntries   int           `yaml:"maxEntries"`
	WriteTTL     time.Duration `yaml:"writeTTL"`
	AccessTTL    time.Duration `yaml:"accessTTL"`
	RefreshAfter time.Duration `yaml:"refreshAfter"`
}

// RedisConfig controls the shared response cache.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ResponseTTL  time.Duration `yaml:"responseTTL"`
}

// WorkersConfig bounds per-backend concurrency and per-task time.
type WorkersConfig struct {
	PoolSize     int           `yaml:"poolSize"`
	TaskTimeout  time.Duration `yaml:"taskTimeout"`
	DefaultLimit int           `yaml:"defaultLimit"`
}

// SettingsConfig locates the per-service settings documents.
type SettingsConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return &utils.ConfigurationError{Service: "config", Field: "server.address"}
	}
	if c.Workers.PoolSize < 0 {
		return &utils.ConfigurationError{Service: "config", Field: "workers.poolSize", Reason: "must not be negative"}
	}
	if c.Analytics.Breaker.FailureRatio < 0 || c.Analytics.Breaker.FailureRatio > 1 {
		return &utils.ConfigurationError{Service: "config", Field: "analytics.breaker.failureRatio", Reason: "must be within [0, 1]"}
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return &utils.ConfigurationError{Service: "config", Field: "cache.redis.addr"}
	}
	return nil
}

func defaultConfig() Config {
	analytics := MemoConfig{MaxEntries: 500, WriteTTL: 2 * time.Minute}
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Timeout:  5 * time.Second,
			GroupTTL: 5 * time.Minute,
			Paths: AnalyticsPaths{
				Views:            "/api/v1/views/resolve",
				RegressionWindow: "/api/v1/regression/window",
				Regression:       "/api/v1/regression",
				Graph:            "/api/v1/graphs/volume",
				Events:           "/api/v1/events",
				Transactions:     "/api/v1/transactions",
				Deployments:      "/api/v1/deployments",
				Groups:           "/api/v1/groups/expand",
			},
			Breaker: BreakerConfig{
				MaxRequests:  1,
				Timeout:      30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				KeyPrefix:    "mirador-reliability:",
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
				ResponseTTL:  2 * time.Minute,
			},
			JanitorInterval: time.Minute,
			Views:           MemoConfig{MaxEntries: 1000, WriteTTL: 2 * time.Minute},
			Events:          analytics,
			Graphs:          analytics,
			Transactions:    analytics,
			Windows:         MemoConfig{MaxEntries: 1000, AccessTTL: 10 * time.Minute, RefreshAfter: time.Minute},
			Reports:         MemoConfig{MaxEntries: 2000, WriteTTL: 2 * time.Minute},
			Settings:        MemoConfig{MaxEntries: 1000, WriteTTL: 20 * time.Second},
		},
		Workers: WorkersConfig{
			PoolSize:     10,
			TaskTimeout:  30 * time.Second,
			DefaultLimit: 10,
		},
		Settings: SettingsConfig{Dir: "configs/settings"},
		Logging:  LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "METRICS_ADDRESS")
	setDuration(&cfg.Server.GracefulTimeout, "GRACEFUL_TIMEOUT")

	setString(&cfg.Analytics.BaseURL, "ANALYTICS_URL")
	setString(&cfg.Analytics.APIKey, "ANALYTICS_API_KEY")
	setDuration(&cfg.Analytics.Timeout, "ANALYTICS_TIMEOUT")
	setDuration(&cfg.Analytics.GroupTTL, "ANALYTICS_GROUP_TTL")
	setDuration(&cfg.Analytics.Breaker.Timeout, "BREAKER_TIMEOUT")
	if v := os.Getenv(envPrefix + "BREAKER_FAILURE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analytics.Breaker.FailureRatio = ratio
		}
	}

	setBool(&cfg.Cache.Redis.Enabled, "REDIS_ENABLED")
	setString(&cfg.Cache.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Cache.Redis.Username, "REDIS_USERNAME")
	setString(&cfg.Cache.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Cache.Redis.DB, "REDIS_DB")
	setBool(&cfg.Cache.Redis.TLS, "REDIS_TLS")
	setInt(&cfg.Cache.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setDuration(&cfg.Cache.Redis.DialTimeout, "REDIS_DIAL_TIMEOUT")
	setDuration(&cfg.Cache.Redis.ReadTimeout, "REDIS_READ_TIMEOUT")
	setDuration(&cfg.Cache.Redis.WriteTimeout, "REDIS_WRITE_TIMEOUT")
	setDuration(&cfg.Cache.Redis.ResponseTTL, "REDIS_RESPONSE_TTL")
	setDuration(&cfg.Cache.JanitorInterval, "CACHE_JANITOR_INTERVAL")

	setInt(&cfg.Workers.PoolSize, "WORKERS_POOL_SIZE")
	setDuration(&cfg.Workers.TaskTimeout, "TASK_TIMEOUT")
	setInt(&cfg.Workers.DefaultLimit, "DEFAULT_LIMIT")

	setString(&cfg.Settings.Dir, "SETTINGS_DIR")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
}

func setString(dst *string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setInt(dst *int, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
