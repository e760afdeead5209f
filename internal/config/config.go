package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the overall configuration for the engine.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Networks       []NetworkNode        `yaml:"networks"`
	ActiveNetwork  string               `yaml:"activeNetwork"`
	Contract       ContractConfig       `yaml:"contract"`
	Custody        CustodyConfig        `yaml:"custody"`
	FeePolicy      FeePolicyConfig      `yaml:"feePolicy"`
	Submission     SubmissionConfig     `yaml:"submission"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	RpcClient      RpcClientConfig      `yaml:"rpcClient"`
	Cache          CacheConfig          `yaml:"cache"`
	Storage        StorageConfig        `yaml:"storage"`
	Broadcaster    BroadcasterConfig    `yaml:"broadcaster"`
	Swagger        SwaggerConfig        `yaml:"swagger"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// NetworkNode describes one rollup network the engine can submit to.
type NetworkNode struct {
	Name            string   `yaml:"name"`    // e.g. "mantle-sepolia"
	ChainID         int64    `yaml:"chainID"` // e.g. 5003
	RPCURL          string   `yaml:"rpcURL"`
	FallbackRPCURLs []string `yaml:"fallbackRpcUrls"`
	ExplorerURL     string   `yaml:"explorerURL"`
	ExplorerAPIURL  string   `yaml:"explorerApiURL"`
	NativeSymbol    string   `yaml:"nativeSymbol"`
	Decimals        uint8    `yaml:"decimals"`
}

// ContractConfig locates the fractional-ownership ledger contract.
type ContractConfig struct {
	Address string `yaml:"address"`
}

// CustodyConfig holds key custody settings. The sealing secret itself comes
// from the environment, never the config file.
type CustodyConfig struct {
	SecretEnv       string            `yaml:"secretEnv"`
	DefaultBalances map[string]string `yaml:"defaultBalances"` // symbol -> decimal string
	RelayerOwnerID  string            `yaml:"relayerOwnerId"`
}

// FeePolicyConfig is the per-operation-class resource-cost table.
type FeePolicyConfig struct {
	SafetyMultiplier   float64           `yaml:"safetyMultiplier"`
	FallbackUnits      map[string]uint64 `yaml:"fallbackUnits"` // operation class -> gas units
	DefaultGasPriceWei int64             `yaml:"defaultGasPriceWei"`
}

// SubmissionConfig bounds confirmation tracking.
type SubmissionConfig struct {
	ConfirmTimeoutSeconds  int   `yaml:"confirmTimeoutSeconds"`
	PollIntervalMillis     int64 `yaml:"pollIntervalMillis"`
	RecheckIntervalSeconds int   `yaml:"recheckIntervalSeconds"`
}

// ReconciliationConfig drives the background sync loop.
type ReconciliationConfig struct {
	IntervalSeconds     int     `yaml:"intervalSeconds"`
	TrackedAssets       []int64 `yaml:"trackedAssets"`
	MaxConcurrentOwners int     `yaml:"maxConcurrentOwners"`
}

// RpcClientConfig bounds outbound RPC traffic.
type RpcClientConfig struct {
	RateLimit                float64 `yaml:"rateLimit"`
	BurstLimit               int     `yaml:"burstLimit"`
	ConnectionTimeoutSeconds int     `yaml:"connectionTimeoutSeconds"`
	CallTimeoutSeconds       int     `yaml:"callTimeoutSeconds"`
}

// CacheConfig tunes the in-memory ledger cache.
type CacheConfig struct {
	TTLMinutes     int `yaml:"ttlMinutes"`
	CleanupMinutes int `yaml:"cleanupMinutes"`
}

// StorageConfig selects the durable per-owner blob store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "file"
	Dir    string `yaml:"dir"`
}

// BroadcasterConfig selects the broadcast path once, at composition time.
type BroadcasterConfig struct {
	Mode string `yaml:"mode"` // "live" or "simulated"
}

// SwaggerConfig toggles the API docs route.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig reads the YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("config %s declares no networks", path)
	}
	if cfg.ActiveNetwork == "" {
		cfg.ActiveNetwork = cfg.Networks[0].Name
		logrus.Infof("activeNetwork not set, defaulting to %q", cfg.ActiveNetwork)
	}
	if _, ok := cfg.Network(cfg.ActiveNetwork); !ok {
		return nil, fmt.Errorf("activeNetwork %q is not declared under networks", cfg.ActiveNetwork)
	}
	for _, network := range cfg.Networks {
		if network.RPCURL == "" {
			logrus.Warnf("Network %q (ChainID: %d) has no rpcURL; live submission on it will fail.", network.Name, network.ChainID)
		}
		if network.ExplorerAPIURL == "" {
			logrus.Warnf("Network %q has no explorerApiURL; pending re-checks will rely on RPC receipts only.", network.Name)
		}
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

// Network returns the declared network node by name.
func (c *Config) Network(name string) (NetworkNode, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkNode{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout <= 0 {
		// Submission handlers hold the response for up to the confirmation
		// timeout, so the write deadline must sit above it.
		cfg.Server.WriteTimeout = 120
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Custody.SecretEnv == "" {
		cfg.Custody.SecretEnv = "FRACTEA_CUSTODY_SECRET"
		logrus.Infof("custody.secretEnv not set, defaulting to %s", cfg.Custody.SecretEnv)
	}
	if len(cfg.Custody.DefaultBalances) == 0 {
		cfg.Custody.DefaultBalances = map[string]string{"USDC": "0.00", "MNT": "0.00"}
		logrus.Info("custody.defaultBalances not set, defaulting to USDC/MNT at 0.00")
	}

	if cfg.FeePolicy.SafetyMultiplier <= 0 {
		cfg.FeePolicy.SafetyMultiplier = 1.2
		logrus.Infof("feePolicy.safetyMultiplier not set, defaulting to %.1f", cfg.FeePolicy.SafetyMultiplier)
	}
	if len(cfg.FeePolicy.FallbackUnits) == 0 {
		cfg.FeePolicy.FallbackUnits = map[string]uint64{
			"native_transfer": 100000,
			"token_operation": 120000,
			"contract_call":   150000,
		}
		logrus.Info("feePolicy.fallbackUnits not set, using built-in per-class defaults")
	}
	if cfg.FeePolicy.DefaultGasPriceWei <= 0 {
		cfg.FeePolicy.DefaultGasPriceWei = 1_000_000_000 // 1 gwei
	}

	if cfg.Submission.ConfirmTimeoutSeconds <= 0 {
		cfg.Submission.ConfirmTimeoutSeconds = 90
	}
	if cfg.Submission.PollIntervalMillis <= 0 {
		cfg.Submission.PollIntervalMillis = 2000
	}
	if cfg.Submission.RecheckIntervalSeconds <= 0 {
		cfg.Submission.RecheckIntervalSeconds = 30
	}

	if cfg.Reconciliation.IntervalSeconds <= 0 {
		cfg.Reconciliation.IntervalSeconds = 120
	}
	if cfg.Reconciliation.MaxConcurrentOwners <= 0 {
		cfg.Reconciliation.MaxConcurrentOwners = 8
	}

	if cfg.RpcClient.RateLimit <= 0 {
		cfg.RpcClient.RateLimit = 10
	}
	if cfg.RpcClient.BurstLimit <= 0 {
		cfg.RpcClient.BurstLimit = 5
	}
	if cfg.RpcClient.ConnectionTimeoutSeconds <= 0 {
		cfg.RpcClient.ConnectionTimeoutSeconds = 10
	}
	if cfg.RpcClient.CallTimeoutSeconds <= 0 {
		cfg.RpcClient.CallTimeoutSeconds = 10
	}

	if cfg.Cache.TTLMinutes <= 0 {
		cfg.Cache.TTLMinutes = 60
	}
	if cfg.Cache.CleanupMinutes <= 0 {
		cfg.Cache.CleanupMinutes = 10
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data/store"
	}

	if cfg.Broadcaster.Mode == "" {
		cfg.Broadcaster.Mode = "live"
		logrus.Info("broadcaster.mode not set, defaulting to live")
	}

	if cfg.Swagger.Path == "" {
		cfg.Swagger.Path = "/swagger"
	}
}
