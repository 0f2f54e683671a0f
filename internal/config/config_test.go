package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Builder.RemoteSignerURL = "https://signer.example.com/sign"
	cfg.Auth.BearerToken = "token"
	return cfg
}

func TestDefaults_ValidOnceWalletAndBuilderAreSet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "1000000000000", cfg.MinAllowanceInt().String())
	assert.Equal(t, 30, cfg.Relayer.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Relayer.PollInterval.Duration)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "arbitrage"
	cfg.RPC.Endpoints = []string{"not a url"}
	cfg.Approvals.MinAllowance = "lots"
	cfg.Relayer.MaxAttempts = 0
	cfg.Contracts.Exchange = "0x123"
	cfg.Builder.ApiKey = "only-key"

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		`unknown mode "arbitrage"`,
		"wallet: either private_key or encrypted_key_path must be set",
		`rpc: invalid endpoint "not a url"`,
		`approvals: min_allowance must be a non-negative integer, got "lots"`,
		"relayer: max_attempts must be >= 1",
		"contracts: exchange is not a valid address",
		"builder: api_key, api_secret, and api_passphrase must all be set together",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_RemoteSignerNeedsBearerToken(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.BearerToken = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth: bearer_token is required")
}

func TestLoad_TOMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "onboard"

[rpc]
endpoints = ["https://a.example", "https://b.example"]
call_timeout = "3s"

[approvals]
min_allowance = "5000"

[relayer]
poll_interval = "500ms"
max_attempts = 4
`), 0o600))

	t.Setenv("POLYONBOARD_RELAYER_MAX_ATTEMPTS", "9")
	t.Setenv("POLYONBOARD_RPC_ENDPOINTS", "https://c.example, https://d.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "onboard", cfg.Mode)
	assert.Equal(t, []string{"https://c.example", "https://d.example"}, cfg.RPC.Endpoints)
	assert.Equal(t, 3*time.Second, cfg.RPC.CallTimeout.Duration)
	assert.Equal(t, "5000", cfg.Approvals.MinAllowance)
	assert.Equal(t, 500*time.Millisecond, cfg.Relayer.PollInterval.Duration)
	assert.Equal(t, 9, cfg.Relayer.MaxAttempts)
	// untouched sections keep their defaults
	assert.Equal(t, "https://relayer-v2.polymarket.com", cfg.Polymarket.RelayerHost)
}

func TestRedactedConfig_HidesSecretsWithoutMutatingOriginal(t *testing.T) {
	cfg := validConfig()
	cfg.Supabase.Password = "pg-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Auth.BearerToken)
	assert.Equal(t, "***", red.Supabase.Password)
	assert.Equal(t, "", red.Redis.Password)

	red.RPC.Endpoints[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.RPC.Endpoints[0])
	assert.Equal(t, "pg-secret", cfg.Supabase.Password)
}
