package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one upstream market data provider.
type SourceConfig struct {
	Name         string        `yaml:"name"`
	Kind         string        `yaml:"kind"` // rest or stream
	Capabilities []string      `yaml:"capabilities"`
	Trust        float64       `yaml:"trust"`
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	Symbols      []string      `yaml:"symbols"`
	RateLimit    float64       `yaml:"rate_limit"`
	MaxQuoteAge  time.Duration `yaml:"max_quote_age"`
	Disabled     bool          `yaml:"disabled"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Engine struct {
		Weights struct {
			Freshness    float64 `yaml:"freshness"`
			Latency      float64 `yaml:"latency"`
			Uptime       float64 `yaml:"uptime"`
			Completeness float64 `yaml:"completeness"`
			Trust        float64 `yaml:"trust"`
		} `yaml:"weights"`
		WindowSize       int           `yaml:"window_size"`
		WindowHorizon    time.Duration `yaml:"window_horizon"`
		PerSourceTimeout time.Duration `yaml:"per_source_timeout"`
		PlanDeadline     time.Duration `yaml:"plan_deadline"`
		FallbackDepth    int           `yaml:"fallback_depth"`
		FusionFanOut     int           `yaml:"fusion_fan_out"`
		Breaker          struct {
			Threshold   int           `yaml:"threshold"`
			Cooldown    time.Duration `yaml:"cooldown"`
			MaxCooldown time.Duration `yaml:"max_cooldown"`
		} `yaml:"breaker"`
		Merge struct {
			StalenessTolerance time.Duration `yaml:"staleness_tolerance"`
			ScoreEpsilon       float64       `yaml:"score_epsilon"`
			ValueEpsilon       float64       `yaml:"value_epsilon"`
		} `yaml:"merge"`
		Retry struct {
			MaxAttempts int           `yaml:"max_attempts"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
		} `yaml:"retry"`
	} `yaml:"engine"`
	Sources []SourceConfig `yaml:"sources"`
	Cache   struct {
		TTL    time.Duration `yaml:"ttl"`
		Memory struct {
			MaxEntries int `yaml:"max_entries"`
		} `yaml:"memory"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
		Async        bool          `yaml:"async"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool   `yaml:"enabled"`
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		Database    string `yaml:"database"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Table       string `yaml:"table"`
		AsyncInsert bool   `yaml:"async_insert"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Source API keys come from <NAME>_API_KEY, uppercased.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	for i := range c.Sources {
		key := strings.ToUpper(strings.ReplaceAll(c.Sources[i].Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			c.Sources[i].APIKey = v
		}
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name '%s'", s.Name)
		}
		seen[s.Name] = true
		if s.Kind != "rest" && s.Kind != "stream" {
			return fmt.Errorf("source '%s': kind must be 'rest' or 'stream', got '%s'", s.Name, s.Kind)
		}
		if len(s.Capabilities) == 0 {
			return fmt.Errorf("source '%s': capabilities cannot be empty", s.Name)
		}
		if s.Trust < 0 || s.Trust > 1 {
			return fmt.Errorf("source '%s': trust must be in [0, 1]", s.Name)
		}
		if s.URL == "" {
			return fmt.Errorf("source '%s': url is required", s.Name)
		}
		if s.Kind == "stream" && len(s.Symbols) == 0 {
			return fmt.Errorf("source '%s': stream sources need symbols to subscribe", s.Name)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
