package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the service.
// LoadConfig reads the yaml file, then environment variables override selected values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Engine struct {
		InboxSize        int    `yaml:"inbox_size"`
		PriceScale       int32  `yaml:"price_scale"`
		QuantityScale    int32  `yaml:"quantity_scale"`
		// checks the books and the orders each submit touched; cost grows with resting orders
		VerifyInvariants bool   `yaml:"verify_invariants"`
		DumpPath         string `yaml:"dump_path"`
	} `yaml:"engine"`

	Logging struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`

	Stream struct {
		Enabled bool `yaml:"enabled"`
		Buffer  int  `yaml:"buffer"`
	} `yaml:"stream"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`

	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Feed struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"feed"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config
	cfg.App.Name = "order-matcher"
	cfg.App.Version = "dev"

	cfg.Server.Addr = ":8000"
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Engine.InboxSize = 1024
	cfg.Engine.PriceScale = 2
	cfg.Engine.QuantityScale = 2
	cfg.Engine.DumpPath = "engine_dump.json"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Logging.File = "matcher.log"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28
	cfg.Logging.Compress = true

	cfg.Stream.Enabled = true
	cfg.Stream.Buffer = 64

	cfg.Journal.Path = "data/trades.db"

	cfg.Kafka.Topic = "trades"

	cfg.Feed.Buffer = 256
	return &cfg
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return &FieldError{Field: "server.addr", Err: errors.New("must not be empty")}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return &FieldError{Field: "server.shutdown_timeout", Err: errors.New("must be positive")}
	}

	if c.Engine.InboxSize <= 0 {
		return &FieldError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Engine.PriceScale < 0 || c.Engine.PriceScale > 18 {
		return &FieldError{Field: "engine.price_scale", Err: fmt.Errorf("%d out of range 0..18", c.Engine.PriceScale)}
	}
	if c.Engine.QuantityScale < 0 || c.Engine.QuantityScale > 18 {
		return &FieldError{Field: "engine.quantity_scale", Err: fmt.Errorf("%d out of range 0..18", c.Engine.QuantityScale)}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &FieldError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	if c.Stream.Enabled && c.Stream.Buffer <= 0 {
		return &FieldError{Field: "stream.buffer", Err: errors.New("must be positive")}
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return &FieldError{Field: "journal.path", Err: errors.New("required when the journal is enabled")}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return &FieldError{Field: "kafka.brokers", Err: errors.New("at least one broker is required")}
		}
		if c.Kafka.Topic == "" {
			return &FieldError{Field: "kafka.topic", Err: errors.New("required when kafka is enabled")}
		}
	}
	if c.Feed.Buffer <= 0 {
		return &FieldError{Field: "feed.buffer", Err: errors.New("must be positive")}
	}

	return nil
}

// overrideWithEnv replaces values for which an environment variable is set
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("MATCHER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("MATCHER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if brokers := os.Getenv("MATCHER_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
		cfg.Kafka.Enabled = len(cfg.Kafka.Brokers) > 0
	}
	if path := os.Getenv("MATCHER_JOURNAL_PATH"); path != "" {
		cfg.Journal.Path = path
		cfg.Journal.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FieldError represents an invalid configuration value
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
