package oracled

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flightsurety/native/bank"
	"flightsurety/native/flight"
)

const (
	StatusModeRandom = "random"
	StatusModeFixed  = "fixed"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config describes the oracle agents run alongside the node.
type Config struct {
	// JournalPath is the bbolt file remembering requests that no longer
	// accept responses. Empty keeps the journal in memory.
	JournalPath string `yaml:"journal"`
	// Stake is the registration fee each agent attaches, in whole units.
	Stake string `yaml:"stake"`
	// Fund credits each agent with its stake before registering. Only
	// meaningful on development nodes.
	Fund bool `yaml:"fund"`
	// Count generates this many agents with fresh keys in addition to
	// Oracles.
	Count        int                `yaml:"count"`
	Oracles      []OracleConfig     `yaml:"oracles"`
	Registration RegistrationConfig `yaml:"registration"`
	Status       StatusConfig       `yaml:"status"`
}

// OracleConfig pins an agent to a known key.
type OracleConfig struct {
	Key    string `yaml:"key"`
	KeyEnv string `yaml:"key_env"`
	// Status, when set, makes this agent always report the given code.
	Status string `yaml:"status"`
}

// RegistrationConfig bounds the registration retry loop.
type RegistrationConfig struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
}

// StatusConfig selects how agents pick the status they report.
type StatusConfig struct {
	Mode string `yaml:"mode"`
	Code string `yaml:"code"`
	Seed uint64 `yaml:"seed"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Stake) == "" {
		cfg.Stake = "1"
	}
	if cfg.Registration.Attempts <= 0 {
		cfg.Registration.Attempts = 10
	}
	if cfg.Registration.Delay.Duration == 0 {
		cfg.Registration.Delay.Duration = time.Second
	}
	if strings.TrimSpace(cfg.Status.Mode) == "" {
		cfg.Status.Mode = StatusModeRandom
	}
	cfg.Status.Mode = strings.ToLower(strings.TrimSpace(cfg.Status.Mode))
}

func validateConfig(cfg Config) error {
	if cfg.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if cfg.Count == 0 && len(cfg.Oracles) == 0 {
		return fmt.Errorf("at least one oracle must be configured")
	}
	if _, err := cfg.StakeAmount(); err != nil {
		return err
	}
	if cfg.Registration.Delay.Duration < 0 {
		return fmt.Errorf("registration delay must not be negative")
	}
	switch cfg.Status.Mode {
	case StatusModeRandom:
	case StatusModeFixed:
		if _, err := flight.ParseStatusCode(cfg.Status.Code); err != nil {
			return fmt.Errorf("status code: %w", err)
		}
	default:
		return fmt.Errorf("unsupported status mode %q", cfg.Status.Mode)
	}
	for i, o := range cfg.Oracles {
		if strings.TrimSpace(o.Key) == "" && strings.TrimSpace(o.KeyEnv) == "" {
			return fmt.Errorf("oracles[%d]: key or key_env must be configured", i)
		}
		if o.Status != "" {
			if _, err := flight.ParseStatusCode(o.Status); err != nil {
				return fmt.Errorf("oracles[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// StakeAmount parses Stake into base units.
func (c Config) StakeAmount() (*big.Int, error) {
	stake, err := bank.ParseUnits(c.Stake)
	if err != nil {
		return nil, fmt.Errorf("stake: %w", err)
	}
	if stake.Sign() <= 0 {
		return nil, fmt.Errorf("stake must be positive")
	}
	return stake, nil
}

func (o OracleConfig) resolveKey() (string, error) {
	if key := strings.TrimSpace(o.Key); key != "" {
		return key, nil
	}
	env := strings.TrimSpace(o.KeyEnv)
	value := strings.TrimSpace(os.Getenv(env))
	if value == "" {
		return "", fmt.Errorf("environment variable %s is empty", env)
	}
	return value, nil
}
