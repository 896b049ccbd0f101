package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "HEALTH_ADDR", "CLEANUP_INTERVAL", "MAX_GAS_PRICE_GWEI", "NETWORKS_CONFIG_FILE")
	os.Setenv("NETWORKS_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HealthAddr != "0.0.0.0:8081" {
		t.Errorf("got health addr %q, want default", cfg.HealthAddr)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("got cleanup interval %v, want 5m default", cfg.CleanupInterval)
	}
	if cfg.MaxGasPriceGwei != 200 {
		t.Errorf("got max gas price %d, want 200 default", cfg.MaxGasPriceGwei)
	}
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	clearEnv(t, "HEALTH_ADDR", "NETWORKS_CONFIG_FILE")
	os.Setenv("HEALTH_ADDR", "127.0.0.1:9999")
	os.Setenv("NETWORKS_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HealthAddr != "127.0.0.1:9999" {
		t.Errorf("got %q, want 127.0.0.1:9999", cfg.HealthAddr)
	}
}

func TestLoad_NetworksFileMissingIsNotAnError(t *testing.T) {
	clearEnv(t, "NETWORKS_CONFIG_FILE")
	os.Setenv("NETWORKS_CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Networks.Chains) != 0 {
		t.Errorf("expected no chains, got %d", len(cfg.Networks.Chains))
	}
}

func TestLoad_NetworksFileParsed(t *testing.T) {
	clearEnv(t, "NETWORKS_CONFIG_FILE")
	path := filepath.Join(t.TempDir(), "networks.yaml")
	yaml := `
chains:
  - chain_id: 1
    name: ethereum
    rpc_url: https://rpc.example/1
    settler_address: "0xabc"
    tokens: ["0xdef"]
    confirmations: 12
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write networks file: %v", err)
	}
	os.Setenv("NETWORKS_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Networks.Chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(cfg.Networks.Chains))
	}
	chain := cfg.Networks.Chains[0]
	if chain.ChainID != 1 || chain.Name != "ethereum" || chain.Confirmations != 12 {
		t.Errorf("got %+v, unexpected values", chain)
	}
}

func TestValidate_RequiresPrivateKeyAndOracleAndChains(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error on a zero-value config")
	}
}

func TestValidate_PostgresRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{
		PrivateKeyHex:       "abc",
		SettlementOracleURL: "http://oracle",
		StoreBackend:        "postgres",
		Networks: NetworksConfig{Chains: []ChainConfig{
			{ChainID: 1, RPCURL: "http://rpc", SettlerAddress: "0xabc"},
		}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when postgres backend has no DATABASE_URL")
	}
}

func TestValidate_PassesWithAllRequiredFields(t *testing.T) {
	cfg := &Config{
		PrivateKeyHex:       "abc",
		SettlementOracleURL: "http://oracle",
		StoreBackend:        "kv",
		Networks: NetworksConfig{Chains: []ChainConfig{
			{ChainID: 1, RPCURL: "http://rpc", SettlerAddress: "0xabc"},
		}},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
