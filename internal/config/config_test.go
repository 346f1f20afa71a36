package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerID != "main" || cfg.Store != StoreBolt || cfg.Randomness != "crypto" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	ed, err := cfg.ExistentialDepositValue()
	if err != nil || !ed.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("existential deposit=%v err=%v", ed, err)
	}
}

func TestLoad_YAMLAndGenesis(t *testing.T) {
	path := writeYAML(t, `
ledger_id: " test "
store: MEMORY
snapshot_every_cycles: 10
randomness: deterministic
seed: 42
existential_deposit: "5"
genesis:
  carol: "300"
  alice: "100"
  bob: "200.5"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerID != "test" || cfg.Store != StoreMemory || cfg.Seed != 42 || cfg.SnapshotEveryCycles != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	accts, err := cfg.GenesisAccounts()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if len(accts) != 3 || accts[0].ID != "alice" || accts[1].ID != "bob" || accts[2].ID != "carol" {
		t.Fatalf("genesis order: %+v", accts)
	}
	if !accts[1].Balance.Equal(decimal.RequireFromString("200.5")) {
		t.Fatalf("bob balance=%s", accts[1].Balance)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "ledger_id: fromfile\nstore: bolt\n")
	t.Setenv("KITTY_LEDGER_ID", "fromenv")
	t.Setenv("KITTY_STORE", "memory")
	t.Setenv("KITTY_SEED", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerID != "fromenv" || cfg.Store != StoreMemory || cfg.Seed != 7 {
		t.Fatalf("env did not override: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"store":      "store: postgres\n",
		"randomness": "randomness: dice\n",
		"ed":         "existential_deposit: \"-1\"\n",
		"genesis":    "genesis:\n  alice: \"-5\"\n",
		"amount":     "genesis:\n  alice: lots\n",
	}
	for name, body := range cases {
		if _, err := Load(writeYAML(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_EnvParseError(t *testing.T) {
	t.Setenv("KITTY_SEED", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected env parse error")
	}
}
