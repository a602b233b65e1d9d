package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"flightsurety/crypto"
	"flightsurety/native/airline"
	"flightsurety/native/insurance"
	"flightsurety/native/oracle"
)

// PassphraseEnv names the environment variable holding the owner keystore
// passphrase.
const PassphraseEnv = "FLIGHTSURETY_OWNER_PASSPHRASE"

type Config struct {
	ListenAddress     string       `toml:"ListenAddress"`
	DataDir           string       `toml:"DataDir"`
	ArchivePath       string       `toml:"ArchivePath"`
	Environment       string       `toml:"Environment"`
	Owner             string       `toml:"Owner"`
	OwnerKeystorePath string       `toml:"OwnerKeystorePath"`
	AgentsFile        string       `toml:"AgentsFile"`
	Logging           Logging      `toml:"Logging"`
	RPC               RPC          `toml:"RPC"`
	Telemetry         Telemetry    `toml:"Telemetry"`
	Params            Params       `toml:"Params"`
	Genesis           []Allocation `toml:"Genesis"`
}

// DefaultParams returns the production parameters in configuration form.
func DefaultParams() Params {
	return Params{
		AirlineFunding:    "1",
		PolicyCap:         "1",
		PayoutBps:         insurance.DefaultPayoutBps,
		BootstrapAirlines: airline.DefaultBootstrapAirlines,
		OracleMinStake:    "1",
		OracleIndexCount:  oracle.DefaultIndexCount,
		OracleIndexSpace:  oracle.DefaultIndexSpace,
		OracleQuorum:      oracle.DefaultQuorum,
	}
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	passphrase func() (string, error)
}

// WithPassphraseSource supplies the owner keystore passphrase. Without it the
// passphrase is read from PassphraseEnv.
func WithPassphraseSource(fn func() (string, error)) LoadOption {
	return func(o *loadOptions) {
		if fn != nil {
			o.passphrase = fn
		}
	}
}

// Load loads the configuration from path, creating a default file (and an
// owner keystore) when none exists.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{passphrase: func() (string, error) { return os.Getenv(PassphraseEnv), nil }}
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options.passphrase)
	}
	cfg := &Config{Params: DefaultParams()}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		if err := ensureOwner(path, cfg, options.passphrase); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.RPC.RateLimit > 0 && cfg.RPC.Burst <= 0 {
		cfg.RPC.Burst = int(cfg.RPC.RateLimit) + 1
	}
}

// Validate checks the owner, parameters and genesis allocations.
func (c *Config) Validate() error {
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if err := ValidateParams(c.Params); err != nil {
		return err
	}
	if _, err := c.Allocations(); err != nil {
		return err
	}
	if c.RPC.RateLimit < 0 {
		return fmt.Errorf("config: RPC.RateLimit must not be negative")
	}
	return nil
}

// ensureOwner derives the owner from the keystore, generating a fresh key when
// the keystore is missing, and writes the resolved address back to the file.
func ensureOwner(configPath string, cfg *Config, passphraseFn func() (string, error)) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	passphrase, err := passphraseFn()
	if err != nil {
		return fmt.Errorf("owner keystore passphrase: %w", err)
	}

	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, err = crypto.GeneratePrivateKey()
		if err != nil {
			return err
		}
		if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		key, err = crypto.LoadFromKeystore(keystorePath, passphrase)
		if err != nil {
			return fmt.Errorf("load owner keystore: %w", err)
		}
	}
	cfg.OwnerKeystorePath = keystorePath
	cfg.Owner = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, passphrase func() (string, error)) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./flightsurety-data",
		ArchivePath:   "./flightsurety-data/events.db",
		Environment:   "local",
		Logging:       Logging{Level: "info"},
		RPC:           RPC{RateLimit: 20, Burst: 40},
		Params:        DefaultParams(),
		Genesis:       []Allocation{},
	}
	if err := ensureOwner(path, cfg, passphrase); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "owner.keystore")
}

// Summary renders the effective parameters for the startup log.
func (p Params) Summary() string {
	return strings.Join([]string{
		"funding=" + p.AirlineFunding,
		"cap=" + p.PolicyCap,
		"payoutBps=" + strconv.FormatUint(p.PayoutBps, 10),
		"bootstrap=" + strconv.Itoa(p.BootstrapAirlines),
		"oracleStake=" + p.OracleMinStake,
		fmt.Sprintf("indexes=%d/%d", p.OracleIndexCount, p.OracleIndexSpace),
		"quorum=" + strconv.Itoa(p.OracleQuorum),
	}, " ")
}
