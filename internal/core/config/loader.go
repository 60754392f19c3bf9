package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ContractABI == "" && cfg.ContractABIFile != "" {
		raw, err := os.ReadFile(cfg.ContractABIFile)
		if err != nil {
			return nil, &Error{Field: "CONTRACT_ABI_FILE", Msg: err.Error()}
		}
		cfg.ContractABI = string(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and their formats.
func (c *Config) Validate() error {
	required := []struct {
		field, value string
	}{
		{"PROVIDER_URL", c.ProviderURL},
		{"PRIVATE_KEY", c.PrivateKey},
		{"CONTRACT_ADDRESS", c.ContractAddress},
		{"CONTRACT_ABI", c.ContractABI},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &Error{Field: r.field, Msg: "required"}
		}
	}

	if !common.IsHexAddress(c.ContractAddress) {
		return &Error{Field: "CONTRACT_ADDRESS", Msg: fmt.Sprintf("%q is not a hex address", c.ContractAddress)}
	}
	if _, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x")); err != nil {
		// The key itself never goes into the message.
		return &Error{Field: "PRIVATE_KEY", Msg: "not a valid secp256k1 hex key"}
	}
	if err := checkABI(c.ContractABI); err != nil {
		return &Error{Field: "CONTRACT_ABI", Msg: err.Error()}
	}

	if c.PollInterval <= 0 {
		return &Error{Field: "POLL_INTERVAL", Msg: "must be positive"}
	}
	if c.RestartDelay <= 0 {
		return &Error{Field: "RESTART_DELAY", Msg: "must be positive"}
	}
	if c.ReceiptPoll <= 0 {
		return &Error{Field: "RECEIPT_POLL", Msg: "must be positive"}
	}
	if c.SubmitTimeout < c.ReceiptPoll {
		return &Error{Field: "SUBMIT_TIMEOUT", Msg: "must be at least RECEIPT_POLL"}
	}
	if c.LogChunkSize == 0 {
		return &Error{Field: "LOG_CHUNK_SIZE", Msg: "must be positive"}
	}
	if c.RPCRateLimit < 0 {
		return &Error{Field: "RPC_RATE_LIMIT", Msg: "must not be negative"}
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return &Error{Field: "HEALTH_PORT", Msg: fmt.Sprintf("%d out of range", c.HealthPort)}
	}
	if c.LeaseEnabled() && c.LeaseTTL < 3*time.Second {
		return &Error{Field: "LEASE_TTL", Msg: "must be at least 3s"}
	}
	return nil
}

func checkABI(raw string) error {
	if !json.Valid([]byte(raw)) {
		return fmt.Errorf("not valid JSON")
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return err
	}
	for _, m := range []string{"lastProcessedNonce", "mint"} {
		if _, ok := parsed.Methods[m]; !ok {
			return fmt.Errorf("method %s missing", m)
		}
	}
	if _, ok := parsed.Events["MintRequest"]; !ok {
		return fmt.Errorf("event MintRequest missing")
	}
	return nil
}
