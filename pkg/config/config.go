package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds all gateway configuration.
type Config struct {
	// Server settings
	ListenAddr string `json:"listen_addr"` // e.g. ":8080"

	// Ethereum RPC endpoint for contract reads (balance, tx, receipt, owner)
	EthereumRPC string `json:"ethereum_rpc"` // e.g. "https://eth-sepolia.g.alchemy.com/v2/YOUR_KEY"

	// Optional WebSocket endpoint for the transfer watcher (wss://...)
	EthereumWS string `json:"ethereum_ws"`

	// Token contract address (ERC-721 or ERC-1155)
	TokenContract string `json:"token_contract"`

	// Payment facilitator settings
	FacilitatorURL string `json:"facilitator_url"` // e.g. "https://facilitator.example.com/verify"
	FacilitatorKey string `json:"facilitator_key"` // bearer token for the facilitator API

	// x402 payment descriptor settings (returned on 200/402)
	PayoutAddress  string `json:"payout_address"`  // where payments are settled
	PaymentAsset   string `json:"payment_asset"`   // ERC-20 asset address, e.g. USDC
	PaymentAmount  string `json:"payment_amount"`  // atomic units, e.g. "10000" = 0.01 USDC
	PaymentNetwork string `json:"payment_network"` // e.g. "base-sepolia"
	ResourceURL    string `json:"resource_url"`    // the gated resource
	ResourceDesc   string `json:"resource_desc"`

	// Optional Redis address for a shared replay store.
	// Empty = process-local in-memory store.
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Timeout applied to each external call (facilitator, RPC reads)
	CallTimeout time.Duration `json:"call_timeout"`

	// How long balance check results are cached
	BalanceCacheTTL time.Duration `json:"balance_cache_ttl"`

	// Allowed CORS origin ("" = CORS disabled)
	CORSOrigin string `json:"cors_origin"`
}

// DefaultConfig returns a config with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		EthereumRPC:     "https://rpc.sepolia.org",
		PaymentNetwork:  "base-sepolia",
		PaymentAmount:   "10000",
		ResourceDesc:    "Token-gated resource",
		CallTimeout:     10 * time.Second,
		BalanceCacheTTL: 1 * time.Minute,
	}
}

// LoadFromFile reads config from a JSON file, applying defaults for missing fields.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.EthereumRPC == "" {
		return fmt.Errorf("ethereum_rpc is required")
	}
	if c.TokenContract == "" {
		return fmt.Errorf("token_contract is required")
	}
	if c.PayoutAddress == "" {
		return fmt.Errorf("payout_address is required")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	return nil
}
