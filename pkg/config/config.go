// Package config loads the solver's configuration from environment
// variables and an optional networks.yaml file describing the chains the
// solver operates on.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the solver core service.
type Config struct {
	// Server Configuration
	HealthAddr  string
	MetricsAddr string

	// Store Configuration
	StoreBackend      string // "kv" or "postgres"
	StoreDataDir      string
	DatabaseURL       string
	DatabaseMaxConns  int
	DatabaseMaxIdle   int
	CleanupInterval   time.Duration

	// Account / Signing Configuration
	PrivateKeyHex string
	StrategyName  string
	MaxGasPriceGwei int64

	// Networks Configuration
	NetworksFile string
	Networks     NetworksConfig

	// Discovery Configuration
	OffChainFeedURL      string
	OffChainPollInterval time.Duration
	OpenEventTopic       string
	DiscoveryPollInterval time.Duration

	// Settlement Configuration
	SettlementOracleURL string
	SettlementTimeout   time.Duration

	// Transaction Monitoring Configuration
	TxMonitorTimeout    time.Duration
	MinConfirmations    uint64
	ClaimBatchSize      int

	// Concurrency Configuration
	TxGateCapacity      int
	GeneralGateCapacity int
}

// NetworksConfig is the set of chains the solver is configured to operate
// on, typically loaded from a networks.yaml file alongside the
// environment-sourced Config.
type NetworksConfig struct {
	Chains []ChainConfig `yaml:"chains"`
}

// ChainConfig describes one chain's RPC endpoint and the settler contract
// this solver fills/claims against on it.
type ChainConfig struct {
	ChainID        uint64   `yaml:"chain_id"`
	Name           string   `yaml:"name"`
	RPCURL         string   `yaml:"rpc_url"`
	SettlerAddress string   `yaml:"settler_address"`
	Tokens         []string `yaml:"tokens"`
	Confirmations  uint64   `yaml:"confirmations"`
}

// Load reads configuration from environment variables and the networks
// file named by NETWORKS_CONFIG_FILE (default ./networks.yaml). An empty
// NETWORKS_CONFIG_FILE or a missing file leaves the chain list empty.
//
// Required variables have no defaults and must be explicitly set; call
// Validate() after Load() to confirm all required configuration is
// present before starting the engine.
func Load() (*Config, error) {
	cfg := &Config{
		HealthAddr:  getEnv("HEALTH_ADDR", "0.0.0.0:8081"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),

		StoreBackend:     getEnv("STORE_BACKEND", "kv"),
		StoreDataDir:     getEnv("STORE_DATA_DIR", "./data"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdle:  getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),

		PrivateKeyHex:   getEnv("SOLVER_PRIVATE_KEY", ""),
		StrategyName:    getEnv("EXECUTION_STRATEGY", "simple"),
		MaxGasPriceGwei: getEnvInt64("MAX_GAS_PRICE_GWEI", 200),

		NetworksFile: getEnv("NETWORKS_CONFIG_FILE", "./networks.yaml"),

		OffChainFeedURL:       getEnv("OFFCHAIN_FEED_URL", ""),
		OffChainPollInterval:  getEnvDuration("OFFCHAIN_POLL_INTERVAL", 5*time.Second),
		OpenEventTopic:        getEnv("OPEN_EVENT_TOPIC", ""),
		DiscoveryPollInterval: getEnvDuration("DISCOVERY_POLL_INTERVAL", 5*time.Second),

		SettlementOracleURL: getEnv("SETTLEMENT_ORACLE_URL", ""),
		SettlementTimeout:   getEnvDuration("SETTLEMENT_HTTP_TIMEOUT", 10*time.Second),

		TxMonitorTimeout: getEnvDuration("TX_MONITOR_TIMEOUT", 30*time.Minute),
		MinConfirmations: uint64(getEnvInt("MIN_CONFIRMATIONS", 2)),
		ClaimBatchSize:   getEnvInt("CLAIM_BATCH_SIZE", 1),

		TxGateCapacity:      getEnvInt("TX_GATE_CAPACITY", 1),
		GeneralGateCapacity: getEnvInt("GENERAL_GATE_CAPACITY", 100),
	}

	if cfg.NetworksFile != "" {
		networks, err := loadNetworks(cfg.NetworksFile)
		if err != nil {
			return nil, fmt.Errorf("config: load networks file %s: %w", cfg.NetworksFile, err)
		}
		cfg.Networks = networks
	}

	return cfg, nil
}

func loadNetworks(path string) (NetworksConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NetworksConfig{}, nil
		}
		return NetworksConfig{}, err
	}
	var networks NetworksConfig
	if err := yaml.Unmarshal(data, &networks); err != nil {
		return NetworksConfig{}, fmt.Errorf("parse yaml: %w", err)
	}
	return networks, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.PrivateKeyHex == "" {
		errs = append(errs, "SOLVER_PRIVATE_KEY is required but not set")
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required when STORE_BACKEND=postgres")
	}
	if c.SettlementOracleURL == "" {
		errs = append(errs, "SETTLEMENT_ORACLE_URL is required but not set")
	}
	if len(c.Networks.Chains) == 0 {
		errs = append(errs, "no chains configured: provide NETWORKS_CONFIG_FILE")
	}
	for _, chain := range c.Networks.Chains {
		if chain.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chain %d (%s): rpc_url is required", chain.ChainID, chain.Name))
		}
		if chain.SettlerAddress == "" {
			errs = append(errs, fmt.Sprintf("chain %d (%s): settler_address is required", chain.ChainID, chain.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
