package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paylab/ledgerlab/internal/model"
)

// Config top-level struct
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Outbox     OutboxConfig     `yaml:"outbox"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// ExperimentConfig selects the consistency policy and failure injection.
type ExperimentConfig struct {
	Mode        string `yaml:"mode"`
	FailProfile string `yaml:"fail_profile"`
	Seed        int64  `yaml:"seed"`
}

type OutboxConfig struct {
	LeaseTimeout      time.Duration `yaml:"lease_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	BatchSize         int           `yaml:"batch_size"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
}

// Load reads the yaml file, applies defaults, then environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if _, ok := model.ParseMode(cfg.Experiment.Mode); !ok {
		return nil, fmt.Errorf("invalid consistency mode %q", cfg.Experiment.Mode)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Experiment.Mode == "" {
		c.Experiment.Mode = string(model.ModeHybrid)
	}
	if c.Experiment.FailProfile == "" {
		c.Experiment.FailProfile = "none"
	}
	if c.Experiment.Seed == 0 {
		c.Experiment.Seed = 42
	}
	if c.Outbox.LeaseTimeout == 0 {
		c.Outbox.LeaseTimeout = 30 * time.Second
	}
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 200 * time.Millisecond
	}
	if c.Outbox.ReconcileInterval == 0 {
		c.Outbox.ReconcileInterval = 5 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 20
	}
	if c.Outbox.MaxAttempts == 0 {
		c.Outbox.MaxAttempts = 7
	}
	if c.Outbox.BackoffBase == 0 {
		c.Outbox.BackoffBase = time.Second
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 200
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 400
	}
}

func (c *Config) applyEnv() error {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		c.Postgres.DSN = c.Postgres.DSN + " password=" + pw
	}
	if mode := os.Getenv("CONSISTENCY_MODE"); mode != "" {
		c.Experiment.Mode = mode
	}
	if profile := os.Getenv("FAIL_PROFILE"); profile != "" {
		c.Experiment.FailProfile = profile
	}
	if seed := os.Getenv("EXPERIMENT_SEED"); seed != "" {
		v, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("parse EXPERIMENT_SEED: %w", err)
		}
		c.Experiment.Seed = v
	}
	for env, dst := range map[string]*time.Duration{
		"OUTBOX_LEASE_TIMEOUT": &c.Outbox.LeaseTimeout,
		"OUTBOX_POLL_INTERVAL": &c.Outbox.PollInterval,
		"RECONCILE_INTERVAL":   &c.Outbox.ReconcileInterval,
	} {
		if raw := os.Getenv(env); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse %s: %w", env, err)
			}
			*dst = d
		}
	}
	return nil
}
