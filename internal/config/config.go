// Package config defines the top-level configuration for polyonboard and
// provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYONBOARD_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Polymarket  PolymarketConfig  `toml:"polymarket"`
	RPC         RPCConfig         `toml:"rpc"`
	Contracts   ContractsConfig   `toml:"contracts"`
	Approvals   ApprovalsConfig   `toml:"approvals"`
	Relayer     RelayerConfig     `toml:"relayer"`
	Builder     BuilderConfig     `toml:"builder"`
	Auth        AuthConfig        `toml:"auth"`
	Credentials CredentialsConfig `toml:"credentials"`
	Supabase    SupabaseConfig    `toml:"supabase"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the owner EOA key material.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// Owner is the address the key must control; empty skips the check.
	Owner string `toml:"owner"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost          string  `toml:"clob_host"`
	RelayerHost       string  `toml:"relayer_host"`
	ChainID           int     `toml:"chain_id"`
	SignatureType     int     `toml:"signature_type"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RPCConfig lists the read endpoints in failover order.
type RPCConfig struct {
	Endpoints   []string `toml:"endpoints"`
	CallTimeout duration `toml:"call_timeout"`
}

// ContractsConfig holds the on-chain addresses the engine interacts with.
type ContractsConfig struct {
	USDC             string `toml:"usdc"`
	CTF              string `toml:"ctf"`
	Exchange         string `toml:"exchange"`
	NegRiskExchange  string `toml:"neg_risk_exchange"`
	NegRiskAdapter   string `toml:"neg_risk_adapter"`
	SafeFactory      string `toml:"safe_factory"`
	SafeInitCodeHash string `toml:"safe_init_code_hash"`
	SafeMultisend    string `toml:"safe_multisend"`
}

// ApprovalsConfig holds the allowance threshold. An ERC-20 allowance counts
// as granted only when it is strictly greater than MinAllowance (minor units).
type ApprovalsConfig struct {
	MinAllowance string `toml:"min_allowance"`
}

// RelayerConfig controls relayer job polling.
type RelayerConfig struct {
	PollInterval duration `toml:"poll_interval"`
	MaxAttempts  int      `toml:"max_attempts"`
}

// BuilderConfig configures builder attribution. RemoteSignerURL is preferred;
// the local key triple is only for development setups.
type BuilderConfig struct {
	RemoteSignerURL string `toml:"remote_signer_url"`
	ApiKey          string `toml:"api_key"`
	ApiSecret       string `toml:"api_secret"`
	ApiPassphrase   string `toml:"api_passphrase"`
}

// AuthConfig supplies the bearer token presented to the remote signer.
type AuthConfig struct {
	BearerToken string `toml:"bearer_token"`
}

// CredentialsConfig controls the shared credential cache.
type CredentialsConfig struct {
	CacheTTL     duration `toml:"cache_ttl"`
	ResetLockTTL duration `toml:"reset_lock_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters used for order and
// settlement receipts.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values for
// Polygon mainnet.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:          "https://clob.polymarket.com",
			RelayerHost:       "https://relayer-v2.polymarket.com",
			ChainID:           137,
			SignatureType:     2,
			RequestsPerSecond: 5,
		},
		RPC: RPCConfig{
			Endpoints:   []string{"https://polygon-rpc.com", "https://polygon-bor-rpc.publicnode.com"},
			CallTimeout: duration{8 * time.Second},
		},
		Contracts: ContractsConfig{
			USDC:             "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			CTF:              "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			Exchange:         "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			NegRiskExchange:  "0xC5d563A36AE78145C45a50134d48A1215220f80a",
			NegRiskAdapter:   "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296",
			SafeFactory:      "0xaacFeEa03eb1561C4e67d661e40682Bd20E3541b",
			SafeInitCodeHash: "0x2bce2127ff07fb632d16c8347c4ebf501f4841168bed00d9e6ef715ddb6fcecf",
			SafeMultisend:    "0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761",
		},
		Approvals: ApprovalsConfig{
			MinAllowance: "1000000000000",
		},
		Relayer: RelayerConfig{
			PollInterval: duration{2 * time.Second},
			MaxAttempts:  30,
		},
		Credentials: CredentialsConfig{
			CacheTTL:     duration{24 * time.Hour},
			ResetLockTTL: duration{30 * time.Second},
		},
		Supabase: SupabaseConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			Namespace:  "polyonboard",
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyonboard-receipts",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"relayer_failed", "relayer_timeout", "credentials_reset", "wallet_deployed"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"onboard": true,
	"check":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// MinAllowanceInt parses Approvals.MinAllowance. Validate guarantees it
// succeeds on a validated config.
func (c *Config) MinAllowanceInt() *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(c.Approvals.MinAllowance), 10)
	if !ok {
		return nil
	}
	return n
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, onboard, check)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.Owner != "" && !common.IsHexAddress(c.Wallet.Owner) {
		errs = append(errs, "wallet: owner must be a hex address")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.RelayerHost == "" {
		errs = append(errs, "polymarket: relayer_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 0 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.RequestsPerSecond < 0 {
		errs = append(errs, "polymarket: requests_per_second must be >= 0")
	}

	// RPC
	if len(c.RPC.Endpoints) == 0 {
		errs = append(errs, "rpc: at least one endpoint is required")
	}
	for _, ep := range c.RPC.Endpoints {
		if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("rpc: invalid endpoint %q", ep))
		}
	}
	if c.RPC.CallTimeout.Duration <= 0 {
		errs = append(errs, "rpc: call_timeout must be > 0")
	}

	// Contracts
	for name, addr := range map[string]string{
		"usdc":              c.Contracts.USDC,
		"ctf":               c.Contracts.CTF,
		"exchange":          c.Contracts.Exchange,
		"neg_risk_exchange": c.Contracts.NegRiskExchange,
		"neg_risk_adapter":  c.Contracts.NegRiskAdapter,
		"safe_factory":      c.Contracts.SafeFactory,
		"safe_multisend":    c.Contracts.SafeMultisend,
	} {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("contracts: %s is not a valid address: %q", name, addr))
		}
	}
	if h := strings.TrimPrefix(c.Contracts.SafeInitCodeHash, "0x"); len(h) != 64 {
		errs = append(errs, "contracts: safe_init_code_hash must be a 32-byte hex string")
	}

	// Approvals
	if n := c.MinAllowanceInt(); n == nil || n.Sign() < 0 {
		errs = append(errs, fmt.Sprintf("approvals: min_allowance must be a non-negative integer, got %q", c.Approvals.MinAllowance))
	}

	// Relayer
	if c.Relayer.PollInterval.Duration <= 0 {
		errs = append(errs, "relayer: poll_interval must be > 0")
	}
	if c.Relayer.MaxAttempts < 1 {
		errs = append(errs, "relayer: max_attempts must be >= 1")
	}

	// Builder local key triple must be set together, or all empty.
	bk := c.Builder.ApiKey != ""
	bs := c.Builder.ApiSecret != ""
	bp := c.Builder.ApiPassphrase != ""
	if bk || bs || bp {
		if !(bk && bs && bp) {
			errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
		}
	}
	if c.Builder.RemoteSignerURL == "" && !bk {
		errs = append(errs, "builder: remote_signer_url or a local api key triple is required")
	}
	if c.Builder.RemoteSignerURL != "" && c.Auth.BearerToken == "" {
		errs = append(errs, "auth: bearer_token is required when builder.remote_signer_url is set")
	}

	// Credentials
	if c.Credentials.ResetLockTTL.Duration <= 0 {
		errs = append(errs, "credentials: reset_lock_ttl must be > 0")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if strings.ToLower(c.Mode) == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
