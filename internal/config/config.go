// Package config loads ledger daemon settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/model"
)

const (
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

type Config struct {
	LedgerID string `yaml:"ledger_id" env:"KITTY_LEDGER_ID"`
	DataDir  string `yaml:"data_dir" env:"KITTY_DATA_DIR"`
	Store    string `yaml:"store" env:"KITTY_STORE"`
	LogLevel string `yaml:"log_level" env:"KITTY_LOG_LEVEL"`

	CycleIntervalMs     int `yaml:"cycle_interval_ms" env:"KITTY_CYCLE_INTERVAL_MS"`
	SnapshotEveryCycles int `yaml:"snapshot_every_cycles" env:"KITTY_SNAPSHOT_EVERY"`
	InboxSize           int `yaml:"inbox_size" env:"KITTY_INBOX_SIZE"`

	Randomness string `yaml:"randomness" env:"KITTY_RANDOMNESS"`
	Seed       int64  `yaml:"seed" env:"KITTY_SEED"`

	ExistentialDeposit string            `yaml:"existential_deposit" env:"KITTY_EXISTENTIAL_DEPOSIT"`
	Genesis            map[string]string `yaml:"genesis,omitempty"`

	// Snapshots landing on a multiple of ArchiveEveryCycles are copied
	// under archives/. KeepSnapshots bounds snapshots/ (0 keeps all).
	ArchiveEveryCycles int `yaml:"archive_every_cycles" env:"KITTY_ARCHIVE_EVERY"`
	KeepSnapshots      int `yaml:"keep_snapshots" env:"KITTY_KEEP_SNAPSHOTS"`

	IndexEnabled    bool   `yaml:"index_enabled" env:"KITTY_INDEX_ENABLED"`
	MetricsTextfile string `yaml:"metrics_textfile" env:"KITTY_METRICS_TEXTFILE"`
}

type GenesisAccount struct {
	ID      model.AccountID
	Balance decimal.Decimal
}

// ParseEnv applies environment overrides to target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads path (when set), applies environment overrides and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("ledger.yaml: %w", err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("ledger.yaml: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		LedgerID:            "main",
		DataDir:             "./data",
		Store:               StoreBolt,
		LogLevel:            "info",
		CycleIntervalMs:     200,
		SnapshotEveryCycles: 100,
		InboxSize:           1024,
		Randomness:          "crypto",
		ExistentialDeposit:  currency.DefaultExistentialDeposit.String(),
		IndexEnabled:        true,
	}
}

func (c *Config) Normalize() {
	c.LedgerID = strings.TrimSpace(c.LedgerID)
	if c.LedgerID == "" {
		c.LedgerID = "main"
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreBolt
	}
	c.Randomness = strings.ToLower(strings.TrimSpace(c.Randomness))
	if c.Randomness == "" {
		c.Randomness = "crypto"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.CycleIntervalMs <= 0 {
		c.CycleIntervalMs = 200
	}
	if c.SnapshotEveryCycles < 0 {
		c.SnapshotEveryCycles = 0
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	if c.ArchiveEveryCycles < 0 {
		c.ArchiveEveryCycles = 0
	}
	if c.KeepSnapshots < 0 {
		c.KeepSnapshots = 0
	}
	c.ExistentialDeposit = strings.TrimSpace(c.ExistentialDeposit)
	if c.ExistentialDeposit == "" {
		c.ExistentialDeposit = currency.DefaultExistentialDeposit.String()
	}
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreBolt, StoreMemory:
	default:
		return fmt.Errorf("invalid store %q", c.Store)
	}
	switch c.Randomness {
	case "crypto", "deterministic":
	default:
		return fmt.Errorf("invalid randomness %q", c.Randomness)
	}
	if _, err := c.ExistentialDepositValue(); err != nil {
		return err
	}
	if _, err := c.GenesisAccounts(); err != nil {
		return err
	}
	return nil
}

func (c Config) ExistentialDepositValue() (decimal.Decimal, error) {
	ed, err := decimal.NewFromString(c.ExistentialDeposit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid existential_deposit %q: %w", c.ExistentialDeposit, err)
	}
	if ed.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid existential_deposit %q: negative", c.ExistentialDeposit)
	}
	return ed, nil
}

// GenesisAccounts returns the configured starting balances sorted by
// account id.
func (c Config) GenesisAccounts() ([]GenesisAccount, error) {
	out := make([]GenesisAccount, 0, len(c.Genesis))
	for id, raw := range c.Genesis {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("genesis: empty account id")
		}
		bal, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("genesis %s: %w", id, err)
		}
		if bal.IsNegative() {
			return nil, fmt.Errorf("genesis %s: negative balance", id)
		}
		out = append(out, GenesisAccount{ID: model.AccountID(id), Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
