package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/datasetagg/internal/platform/envutil"
)

// FileEnv names the optional YAML file read before env overrides.
const FileEnv = "DATASETAGG_CONFIG"

type Config struct {
	LogMode string      `yaml:"log_mode"`
	DB      DBConfig    `yaml:"db"`
	Redis   RedisConfig `yaml:"redis"`
	Lock    LockConfig  `yaml:"lock"`
	// MaxConcurrency bounds how many calculations an append updates at once.
	MaxConcurrency int           `yaml:"max_concurrency"`
	Otel           OtelConfig    `yaml:"otel"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

type DBConfig struct {
	Driver        string        `yaml:"driver"`
	DSN           string        `yaml:"dsn"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type LockConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
	Poll   time.Duration `yaml:"poll"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	ScrapeInterval time.Duration `yaml:"scrape_interval"`
}

func Default() Config {
	return Config{
		LogMode: "development",
		DB: DBConfig{
			Driver:        "sqlite",
			DSN:           "file:datasetagg.db?_busy_timeout=5000",
			SlowThreshold: 200 * time.Millisecond,
		},
		Lock: LockConfig{
			TTL:    30 * time.Second,
			Prefix: "datasetagg:lock:",
			Poll:   50 * time.Millisecond,
		},
		MaxConcurrency: 4,
		Otel:           OtelConfig{ServiceName: "datasetagg", SampleRatio: 0.1},
		Metrics:        MetricsConfig{Addr: ":9464", ScrapeInterval: 10 * time.Second},
	}
}

// Load starts from Default, overlays the YAML file named by DATASETAGG_CONFIG
// when set, then applies env overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.DB.Driver = envutil.String("DB_DRIVER", c.DB.Driver)
	c.DB.DSN = envutil.String("DB_DSN", c.DB.DSN)
	c.DB.MaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", c.DB.MaxOpenConns)
	c.DB.SlowThreshold = envutil.Duration("DB_SLOW_THRESHOLD", c.DB.SlowThreshold)
	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Lock.TTL = envutil.Duration("LOCK_TTL", c.Lock.TTL)
	c.Lock.Prefix = envutil.String("LOCK_PREFIX", c.Lock.Prefix)
	c.MaxConcurrency = envutil.Int("MAX_CONCURRENCY", c.MaxConcurrency)
	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled)
	c.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.Otel.ServiceName)
	c.Otel.Environment = envutil.String("OTEL_ENVIRONMENT", c.Otel.Environment)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	c.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.Otel.Headers)
	c.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Otel.Insecure)
	c.Otel.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", c.Otel.SampleRatio)
	c.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = envutil.String("METRICS_ADDR", c.Metrics.Addr)
	c.Metrics.ScrapeInterval = envutil.Duration("METRICS_SCRAPE_INTERVAL", c.Metrics.ScrapeInterval)
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DB.Driver)) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported db driver %q", c.DB.Driver)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("config: db dsn is required")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("config: max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("config: lock ttl must be positive")
	}
	return nil
}
