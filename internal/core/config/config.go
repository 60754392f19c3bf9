package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrConfiguration is wrapped by every validation error.
var ErrConfiguration = errors.New("invalid configuration")

// Error reports a missing or malformed setting.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

func (e *Error) Unwrap() error { return ErrConfiguration }

// Config is the oracle configuration. Values come from defaults, then the
// optional YAML file, then environment variables.
type Config struct {
	ProviderURL     string `yaml:"provider_url"      env:"PROVIDER_URL"`
	PrivateKey      string `yaml:"private_key"       env:"PRIVATE_KEY"`
	ContractAddress string `yaml:"contract_address"  env:"CONTRACT_ADDRESS"`
	ContractABI     string `yaml:"contract_abi"      env:"CONTRACT_ABI"`
	// ContractABIFile is read into ContractABI when the latter is empty.
	ContractABIFile string `yaml:"contract_abi_file" env:"CONTRACT_ABI_FILE"`

	StartBlock   uint64        `yaml:"start_block"    env:"START_BLOCK"`
	LogChunkSize uint64        `yaml:"log_chunk_size" env:"LOG_CHUNK_SIZE"`
	PollInterval time.Duration `yaml:"poll_interval"  env:"POLL_INTERVAL"`
	RestartDelay time.Duration `yaml:"restart_delay"  env:"RESTART_DELAY"`

	GasLimit    uint64        `yaml:"gas_limit"    env:"GAS_LIMIT"` // 0 = estimate
	ReceiptPoll time.Duration `yaml:"receipt_poll" env:"RECEIPT_POLL"`

	// SubmitTimeout bounds one send-and-wait attempt. An attempt that runs out
	// is retried at a higher gas price.
	SubmitTimeout time.Duration `yaml:"submit_timeout" env:"SUBMIT_TIMEOUT"`
	MaxQuantity   uint64        `yaml:"max_quantity"   env:"MAX_QUANTITY"` // 0 = no cap

	RPCRateLimit float64 `yaml:"rpc_rate_limit" env:"RPC_RATE_LIMIT"` // req/s, 0 = unlimited
	HealthPort   int     `yaml:"health_port"    env:"HEALTH_PORT"`    // 0 disables the server

	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	LeaseTTL time.Duration `yaml:"lease_ttl" env:"LEASE_TTL"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"` // debug, info, warn, error
}

// Default returns a Config holding every default value.
func Default() Config {
	return Config{
		LogChunkSize:  5000,
		PollInterval:  5 * time.Second,
		RestartDelay:  10 * time.Second,
		ReceiptPoll:   2 * time.Second,
		SubmitTimeout: 2 * time.Minute,
		HealthPort:    8080,
		LeaseTTL:      30 * time.Second,
		LogLevel:      "info",
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LeaseEnabled reports whether a Redis lease guards the consumer.
func (c Config) LeaseEnabled() bool { return c.RedisURL != "" }
