package config

import (
	"fmt"
	"os"
	"time"
)

// DefaultColonyAddress is the mainnet betacolony whose activity the feed
// displays.
const DefaultColonyAddress = "0x869814034d96544f3C62DE2aC22448ed79Ac8e70"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ethereum configuration
	EthRPCURL     string
	ColonyAddress string

	// Timeouts: RPCTimeout bounds each individual remote call,
	// RefreshTimeout bounds a full aggregation cycle.
	RPCTimeout     time.Duration
	RefreshTimeout time.Duration

	// TokenMapPath optionally points at a YAML token ticker table merged
	// over the built-in defaults.
	TokenMapPath string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Ethereum configuration
	cfg.EthRPCURL = os.Getenv("ETH_RPC_URL")
	if cfg.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("ETH_RPC_URL is required"))
	}
	cfg.ColonyAddress = getEnvOrDefault("COLONY_ADDRESS", DefaultColonyAddress)

	// Timeouts
	rpcTimeout, err := parseDuration("RPC_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = rpcTimeout
	}

	refreshTimeout, err := parseDuration("REFRESH_TIMEOUT", "2m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RefreshTimeout = refreshTimeout
	}

	// Token map is optional; when set, the file must exist
	cfg.TokenMapPath = os.Getenv("TOKEN_MAP_PATH")
	if cfg.TokenMapPath != "" {
		if _, err := os.Stat(cfg.TokenMapPath); err != nil {
			errs = append(errs, fmt.Errorf("TOKEN_MAP_PATH: %w", err))
		}
	}

	if cfg.RPCTimeout > cfg.RefreshTimeout {
		errs = append(errs, fmt.Errorf("RPC_TIMEOUT (%v) cannot be greater than REFRESH_TIMEOUT (%v)",
			cfg.RPCTimeout, cfg.RefreshTimeout))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("EthRPCURL is required"))
	}

	if c.ColonyAddress == "" {
		errs = append(errs, fmt.Errorf("ColonyAddress is required"))
	}

	if c.RPCTimeout < time.Second {
		errs = append(errs, fmt.Errorf("RPCTimeout must be at least 1 second"))
	}

	if c.RPCTimeout > c.RefreshTimeout {
		errs = append(errs, fmt.Errorf("RPCTimeout cannot be greater than RefreshTimeout"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
