package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYONBOARD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYONBOARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYONBOARD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYONBOARD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYONBOARD_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.Owner, "POLYONBOARD_WALLET_OWNER")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYONBOARD_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.RelayerHost, "POLYONBOARD_POLYMARKET_RELAYER_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYONBOARD_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYONBOARD_POLYMARKET_SIGNATURE_TYPE")
	setFloat64(&cfg.Polymarket.RequestsPerSecond, "POLYONBOARD_POLYMARKET_REQUESTS_PER_SECOND")

	// ── RPC ──
	setStringSlice(&cfg.RPC.Endpoints, "POLYONBOARD_RPC_ENDPOINTS")
	setDuration(&cfg.RPC.CallTimeout, "POLYONBOARD_RPC_CALL_TIMEOUT")

	// ── Contracts ──
	setStr(&cfg.Contracts.USDC, "POLYONBOARD_CONTRACTS_USDC")
	setStr(&cfg.Contracts.CTF, "POLYONBOARD_CONTRACTS_CTF")
	setStr(&cfg.Contracts.Exchange, "POLYONBOARD_CONTRACTS_EXCHANGE")
	setStr(&cfg.Contracts.NegRiskExchange, "POLYONBOARD_CONTRACTS_NEG_RISK_EXCHANGE")
	setStr(&cfg.Contracts.NegRiskAdapter, "POLYONBOARD_CONTRACTS_NEG_RISK_ADAPTER")
	setStr(&cfg.Contracts.SafeFactory, "POLYONBOARD_CONTRACTS_SAFE_FACTORY")
	setStr(&cfg.Contracts.SafeInitCodeHash, "POLYONBOARD_CONTRACTS_SAFE_INIT_CODE_HASH")
	setStr(&cfg.Contracts.SafeMultisend, "POLYONBOARD_CONTRACTS_SAFE_MULTISEND")

	// ── Approvals / Relayer ──
	setStr(&cfg.Approvals.MinAllowance, "POLYONBOARD_APPROVALS_MIN_ALLOWANCE")
	setDuration(&cfg.Relayer.PollInterval, "POLYONBOARD_RELAYER_POLL_INTERVAL")
	setInt(&cfg.Relayer.MaxAttempts, "POLYONBOARD_RELAYER_MAX_ATTEMPTS")

	// ── Builder / Auth ──
	setStr(&cfg.Builder.RemoteSignerURL, "POLYONBOARD_BUILDER_REMOTE_SIGNER_URL")
	setStr(&cfg.Builder.ApiKey, "POLYONBOARD_BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "POLYONBOARD_BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "POLYONBOARD_BUILDER_API_PASSPHRASE")
	setStr(&cfg.Auth.BearerToken, "POLYONBOARD_AUTH_BEARER_TOKEN")

	// ── Credentials ──
	setDuration(&cfg.Credentials.CacheTTL, "POLYONBOARD_CREDENTIALS_CACHE_TTL")
	setDuration(&cfg.Credentials.ResetLockTTL, "POLYONBOARD_CREDENTIALS_RESET_LOCK_TTL")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "POLYONBOARD_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "POLYONBOARD_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYONBOARD_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYONBOARD_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYONBOARD_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYONBOARD_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYONBOARD_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYONBOARD_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYONBOARD_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "POLYONBOARD_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYONBOARD_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "POLYONBOARD_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYONBOARD_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "POLYONBOARD_REDIS_URL")
	setStr(&cfg.Redis.Addr, "POLYONBOARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYONBOARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYONBOARD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYONBOARD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYONBOARD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYONBOARD_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "POLYONBOARD_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYONBOARD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYONBOARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYONBOARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYONBOARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYONBOARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYONBOARD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYONBOARD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYONBOARD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYONBOARD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYONBOARD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYONBOARD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYONBOARD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POLYONBOARD_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYONBOARD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYONBOARD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYONBOARD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYONBOARD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYONBOARD_MODE")
	setStr(&cfg.LogLevel, "POLYONBOARD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
