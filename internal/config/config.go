package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	NATS     NATSConfig     `yaml:"nats"`
	Ops      OpsConfig      `yaml:"ops"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Chains   []ChainConfig  `yaml:"chains"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`        // seconds
	ReconnectWait int    `yaml:"reconnect_wait"` // seconds
	MaxReconnects int    `yaml:"max_reconnects"`
	Enabled       bool   `yaml:"enabled"`
}

// OpsConfig operator API access control configuration
type OpsConfig struct {
	AllowedIPs      []string `yaml:"allowedIPs"` // IP addresses or CIDR ranges allowed besides localhost
	JWTSecret       string   `yaml:"jwtSecret"`
	TokenTTLMinutes int      `yaml:"tokenTTLMinutes"`
}

// WatcherConfig chain watcher configuration
type WatcherConfig struct {
	PollInterval      int `yaml:"pollInterval"`      // seconds between poll cycles
	MaxBlocksPerCycle int `yaml:"maxBlocksPerCycle"` // cap on blocks ingested per cycle
}

// JanitorConfig invoice expiry sweep configuration
type JanitorConfig struct {
	Interval int `yaml:"interval"` // seconds between sweeps
}

// WebhookConfig webhook dispatcher configuration
type WebhookConfig struct {
	Workers         int    `yaml:"workers"`
	BatchSize       int    `yaml:"batchSize"`
	PollInterval    int    `yaml:"pollInterval"`    // seconds between claim polls
	DeliveryTimeout int    `yaml:"deliveryTimeout"` // seconds per HTTP delivery
	RetryBase       int    `yaml:"retryBase"`       // seconds, backoff base
	RetryCap        int    `yaml:"retryCap"`        // seconds, backoff ceiling
	MaxRetries      int    `yaml:"maxRetries"`
	ClaimLease      int    `yaml:"claimLease"`      // seconds before a claimed row is considered abandoned
	ReclaimInterval int    `yaml:"reclaimInterval"` // seconds between abandoned-claim sweeps
	SecretSeed      string `yaml:"secretSeed"`      // seed for deriving per-invoice signing secrets
}

// ChainConfig per-chain configuration
type ChainConfig struct {
	Name            string        `yaml:"name"`
	Family          string        `yaml:"family"` // account or utxo
	RPCURL          string        `yaml:"rpcUrl"`
	MasterPublicKey string        `yaml:"masterPublicKey"` // hex: compressed point + chain code
	NativeSymbol    string        `yaml:"nativeSymbol"`
	NativeDecimals  uint8         `yaml:"nativeDecimals"`
	BlockLag        int64         `yaml:"blockLag"`     // confirmations before a payment is promoted
	PollInterval    int           `yaml:"pollInterval"` // seconds, overrides watcher.pollInterval
	Enabled         bool          `yaml:"enabled"`
	Tokens          []TokenConfig `yaml:"tokens"`
}

// TokenConfig token configuration for a chain
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Contract string `yaml:"contract"`
	Decimals uint8  `yaml:"decimals"`
}

var AppConfig *Config

// LoadConfig loads the configuration file, preferring config.local.yaml
// when no explicit path is given.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)

	if err := normalizeChains(&config); err != nil {
		return err
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if jwtSecret := os.Getenv("OPS_JWT_SECRET"); jwtSecret != "" {
		config.Ops.JWTSecret = jwtSecret
	}

	if seed := os.Getenv("WEBHOOK_SECRET_SEED"); seed != "" {
		config.Webhook.SecretSeed = seed
	}

	// Per-chain overrides, e.g. ETH_MAIN_RPC_URL for chain "eth-main".
	for i, chain := range config.Chains {
		envName := strings.ToUpper(strings.ReplaceAll(chain.Name, "-", "_"))

		if rpcURL := os.Getenv(envName + "_RPC_URL"); rpcURL != "" {
			config.Chains[i].RPCURL = rpcURL
		}
		if masterKey := os.Getenv(envName + "_MASTER_PUBLIC_KEY"); masterKey != "" {
			config.Chains[i].MasterPublicKey = masterKey
		}
	}
}

// normalizeChains lowercases chain names and rejects duplicates. Chain
// names are primary keys downstream, so collisions must fail at boot.
func normalizeChains(config *Config) error {
	seen := make(map[string]struct{}, len(config.Chains))
	for i, chain := range config.Chains {
		name := strings.ToLower(strings.TrimSpace(chain.Name))
		if name == "" {
			return fmt.Errorf("chain at position %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate chain name in config: %s", name)
		}
		seen[name] = struct{}{}
		config.Chains[i].Name = name
		config.Chains[i].NativeSymbol = strings.ToUpper(strings.TrimSpace(chain.NativeSymbol))
		for j, token := range chain.Tokens {
			config.Chains[i].Tokens[j].Symbol = strings.ToUpper(strings.TrimSpace(token.Symbol))
		}
	}
	return nil
}

// GetChainConfig returns the configuration for an enabled chain
func GetChainConfig(name string) (*ChainConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	for i := range AppConfig.Chains {
		if AppConfig.Chains[i].Name == name {
			if !AppConfig.Chains[i].Enabled {
				return nil, fmt.Errorf("chain %s is disabled", name)
			}
			return &AppConfig.Chains[i], nil
		}
	}

	return nil, fmt.Errorf("chain %s not found in config", name)
}
