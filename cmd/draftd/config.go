package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the draftd service configuration, loaded from an optional YAML
// file with environment variable overrides for the deployment-specific
// values.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	NATS         NATSConfig         `yaml:"nats"`
	Outbox       OutboxConfig       `yaml:"outbox"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// StorageConfig selects the persistence backend. Driver "memory" runs
// everything in process, for development and tests.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "memory"
}

// NATSConfig configures the event broker. When disabled, events are
// delivered to the in-process hub only, which is fine for a single node.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
	ConsumerName  string `yaml:"consumer_name"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type OrchestratorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	NumWorkers   int           `yaml:"num_workers"`
}

// DefaultConfig returns the configuration draftd runs with when no file is
// given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    120 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{Driver: "postgres"},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			StreamName:    "DRAFT_EVENTS",
			SubjectPrefix: "draft.events",
			ConsumerName:  "draft-gateway",
		},
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    100,
			MaxRetries:   3,
			RetryDelay:   time.Second,
		},
		Orchestrator: OrchestratorConfig{
			PollInterval: time.Second,
			BatchSize:    25,
			NumWorkers:   4,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if port := os.Getenv("DRAFTD_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if driver := os.Getenv("DRAFTD_STORAGE"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
		cfg.NATS.Enabled = true
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch_size must be greater than 0")
	}
	if c.Orchestrator.BatchSize <= 0 {
		return fmt.Errorf("orchestrator batch_size must be greater than 0")
	}
	if c.Orchestrator.NumWorkers <= 0 {
		return fmt.Errorf("orchestrator num_workers must be greater than 0")
	}
	return nil
}
