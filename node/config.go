package node

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"okinoko-cipher_duel/contract"
	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
)

// Config holds everything the node needs to run. Values are layered:
// defaults, then an optional YAML file, then DUEL_* environment variables,
// then command line flags.
type Config struct {
	ListenAddr string `yaml:"listen_addr" env:"DUEL_LISTEN_ADDR"`
	DBPath     string `yaml:"db_path" env:"DUEL_DB_PATH"`
	// ContractAddr is the escrow account of the contract.
	ContractAddr string `yaml:"contract_addr" env:"DUEL_CONTRACT_ADDR"`
	// OracleAddr is the sender recorded for disclosure callbacks.
	OracleAddr string `yaml:"oracle_addr" env:"DUEL_ORACLE_ADDR"`

	MinWager    string        `yaml:"min_wager" env:"DUEL_MIN_WAGER"`
	JoinTimeout time.Duration `yaml:"join_timeout" env:"DUEL_JOIN_TIMEOUT"`
	MoveTimeout time.Duration `yaml:"move_timeout" env:"DUEL_MOVE_TIMEOUT"`
	Assets      []string      `yaml:"assets" env:"DUEL_ASSETS" envSeparator:","`

	// KeySeed is the hex coprocessor seed. Empty generates a throwaway one.
	KeySeed   string `yaml:"key_seed" env:"DUEL_KEY_SEED"`
	CacheSize int    `yaml:"cache_size" env:"DUEL_CACHE_SIZE"`

	OraclePoll  time.Duration `yaml:"oracle_poll" env:"DUEL_ORACLE_POLL"`
	OracleBatch int           `yaml:"oracle_batch" env:"DUEL_ORACLE_BATCH"`

	Faucet   bool   `yaml:"faucet" env:"DUEL_FAUCET"`
	LogLevel string `yaml:"log_level" env:"DUEL_LOG_LEVEL"`
}

// DefaultConfig returns a config for a local node.
func DefaultConfig() Config {
	c := contract.DefaultConfig()
	assets := make([]string, len(c.Assets))
	for i, a := range c.Assets {
		assets[i] = a.String()
	}
	return Config{
		ListenAddr:   ":8080",
		DBPath:       "duel.db",
		ContractAddr: "contract:duel",
		OracleAddr:   "oracle:duel",
		MinWager:     "1.000",
		JoinTimeout:  c.JoinTimeout,
		MoveTimeout:  c.MoveTimeout,
		Assets:       assets,
		CacheSize:    4096,
		OraclePoll:   time.Second,
		OracleBatch:  32,
		LogLevel:     "info",
	}
}

// LoadConfig applies the YAML file at path (if any) and the environment on
// top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that cannot be defaulted and reports every
// problem at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if strings.TrimSpace(c.DBPath) == "" {
		result = multierror.Append(result, fmt.Errorf("db path is required"))
	}
	if c.ContractAddr == "" || c.OracleAddr == "" {
		result = multierror.Append(result, fmt.Errorf("contract and oracle addresses are required"))
	}
	if c.JoinTimeout <= 0 || c.MoveTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeouts must be positive"))
	}
	if len(c.Assets) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one asset is required"))
	}
	if _, err := contract.ParseAmount(c.MinWager); err != nil {
		result = multierror.Append(result, fmt.Errorf("min wager: %w", err))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("log level: %w", err))
	}
	return result.ErrorOrNil()
}

// ContractConfig converts c into the contract's deployment parameters.
func (c Config) ContractConfig() (contract.Config, error) {
	minWager, err := contract.ParseAmount(c.MinWager)
	if err != nil {
		return contract.Config{}, err
	}
	assets := make([]sdk.Asset, len(c.Assets))
	for i, a := range c.Assets {
		assets[i] = sdk.Asset(strings.TrimSpace(a))
	}
	return contract.Config{
		MinWager:    minWager,
		JoinTimeout: c.JoinTimeout,
		MoveTimeout: c.MoveTimeout,
		Assets:      assets,
	}, nil
}

// Seed returns the configured coprocessor seed, or a fresh one.
func (c Config) Seed() (coprocessor.Seed, bool, error) {
	if c.KeySeed == "" {
		s, err := coprocessor.NewSeed()
		return s, true, err
	}
	s, err := coprocessor.ParseSeed(c.KeySeed)
	return s, false, err
}
