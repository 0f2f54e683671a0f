package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/polyonboard/internal/blob/s3"
	"github.com/alanyoungcy/polyonboard/internal/cache/redis"
	"github.com/alanyoungcy/polyonboard/internal/chain"
	"github.com/alanyoungcy/polyonboard/internal/config"
	"github.com/alanyoungcy/polyonboard/internal/crypto"
	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/executor"
	"github.com/alanyoungcy/polyonboard/internal/notify"
	"github.com/alanyoungcy/polyonboard/internal/platform/polymarket"
	"github.com/alanyoungcy/polyonboard/internal/server/handler"
	"github.com/alanyoungcy/polyonboard/internal/service"
	"github.com/alanyoungcy/polyonboard/internal/session"
	"github.com/alanyoungcy/polyonboard/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. It is built by
// Wire and torn down by the returned cleanup function. Interface-typed
// infrastructure fields are nil when the backing service is disabled.
type Dependencies struct {
	// Infrastructure
	AuditStore  domain.AuditStore
	CredCache   domain.CredentialCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	BlobWriter  domain.BlobWriter
	Receipts    domain.ReceiptReader
	Notifier    *notify.Notifier

	// Health probes for /api/health, keyed by dependency name.
	Checks map[string]handler.Check

	// Chain and relayer
	Signer    *crypto.Signer
	Contracts *chain.Contracts
	Executor  *executor.Executor
	Funder    common.Address

	// Services
	Wallets     *service.WalletService
	Approvals   *service.ApprovalService
	Credentials *service.CredentialService
	Balances    *service.BalanceService
	Orders      *service.OrderService
	Onboard     *service.OnboardService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL audit log ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis: credential cache, reset lock, rate limiter, signal bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.CredCache = redis.NewCredentialCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 receipts ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Receipts = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Signer ---
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
		Owner:            cfg.Wallet.Owner,
	}, int64(cfg.Polymarket.ChainID))
	if err != nil {
		return fail("signer", err)
	}
	deps.Signer = signer

	// --- RPC failover ---
	rpc := chain.Dial(cfg.RPC.Endpoints, cfg.RPC.CallTimeout.Duration, logger)
	closers = append(closers, rpc.Close)
	deps.Contracts = chain.NewContracts(rpc)
	deps.Checks["rpc"] = func(ctx context.Context) error {
		_, err := deps.Contracts.IsDeployed(ctx, common.HexToAddress(cfg.Contracts.USDC))
		return err
	}

	// --- Polymarket clients ---
	builder, err := builderSigner(cfg)
	if err != nil {
		return fail("builder signer", err)
	}
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.RequestsPerSecond, builder)
	relayer := polymarket.NewRelayerClient(cfg.Polymarket.RelayerHost, cfg.Polymarket.RequestsPerSecond, builder)

	deps.Executor = executor.New(relayer, signer, executor.Config{
		SafeFactory:  common.HexToAddress(cfg.Contracts.SafeFactory),
		InitCodeHash: common.HexToHash(cfg.Contracts.SafeInitCodeHash),
		Multisend:    common.HexToAddress(cfg.Contracts.SafeMultisend),
		PollInterval: cfg.Relayer.PollInterval.Duration,
		MaxAttempts:  cfg.Relayer.MaxAttempts,
	}, logger)
	checkSafeAddress(ctx, logger, signer.Address(), deps.Executor.Wallet(), int64(cfg.Polymarket.ChainID))

	// Orders are funded by the Safe unless the account trades from the EOA
	// directly.
	deps.Funder = deps.Executor.Wallet()
	if domain.SignatureType(cfg.Polymarket.SignatureType) == domain.SignatureTypeEOA {
		deps.Funder = signer.Address()
	}

	wireServices(cfg, deps, clob, logger)
	return deps, cleanup, nil
}

// checkSafeAddress compares the executor's Safe with the one Polymarket's
// clients derive for owner. A mismatch is logged, not fatal: test networks
// and forks deploy their own factory.
func checkSafeAddress(ctx context.Context, logger *slog.Logger, owner, safe common.Address, chainID int64) bool {
	expected, err := polymarket.ExpectedSafe(owner, chainID)
	if err != nil {
		logger.WarnContext(ctx, "app: safe address not cross-checked", slog.String("error", err.Error()))
		return false
	}
	if expected != safe {
		logger.WarnContext(ctx, "app: configured safe factory derives a different wallet",
			slog.String("safe", safe.Hex()),
			slog.String("expected", expected.Hex()),
		)
		return false
	}
	return true
}

// wireServices builds the service layer on top of the infrastructure in deps.
func wireServices(cfg *config.Config, deps *Dependencies, clob *polymarket.ClobClient, logger *slog.Logger) {
	contracts := service.ContractSet{
		USDC:            common.HexToAddress(cfg.Contracts.USDC),
		CTF:             common.HexToAddress(cfg.Contracts.CTF),
		Exchange:        common.HexToAddress(cfg.Contracts.Exchange),
		NegRiskExchange: common.HexToAddress(cfg.Contracts.NegRiskExchange),
		NegRiskAdapter:  common.HexToAddress(cfg.Contracts.NegRiskAdapter),
	}

	deps.Wallets = service.NewWalletService(deps.Executor, deps.Contracts, deps.AuditStore, deps.Notifier, logger)
	deps.Approvals = service.NewApprovalService(deps.Contracts, deps.Executor, contracts, cfg.MinAllowanceInt(),
		deps.AuditStore, deps.Notifier, logger)
	if deps.BlobWriter != nil {
		deps.Wallets.WithReceipts(deps.BlobWriter)
		deps.Approvals.WithReceipts(deps.BlobWriter)
	}

	deps.Credentials = service.NewCredentialService(clob, deps.Signer, session.New(), deps.CredCache, deps.LockManager,
		deps.AuditStore, deps.Notifier, service.CredentialOptions{
			CacheTTL:     cfg.Credentials.CacheTTL.Duration,
			ResetLockTTL: cfg.Credentials.ResetLockTTL.Duration,
		}, logger)

	deps.Balances = service.NewBalanceService(deps.Contracts, clob, deps.Credentials, contracts.USDC, deps.Signer.Address(), logger)

	deps.Orders = service.NewOrderService(clob, deps.Signer, deps.Credentials, deps.Balances, service.OrderConfig{
		Exchange:        contracts.Exchange,
		NegRiskExchange: contracts.NegRiskExchange,
		Funder:          deps.Funder,
		RateLimit:       10,
		RateWindow:      time.Second,
	}, deps.RateLimiter, deps.SignalBus, deps.BlobWriter, deps.AuditStore, logger)

	deps.Onboard = service.NewOnboardService(deps.Wallets, deps.Approvals, deps.Credentials, deps.Balances, logger)
}

// builderSigner prefers the remote signer so builder secrets stay out of this
// process; the local key triple is for development.
func builderSigner(cfg *config.Config) (polymarket.BuilderSigner, error) {
	if cfg.Builder.RemoteSignerURL != "" {
		return polymarket.NewRemoteBuilderSigner(cfg.Builder.RemoteSignerURL, polymarket.StaticToken(cfg.Auth.BearerToken)), nil
	}
	if cfg.Builder.ApiKey == "" {
		return nil, fmt.Errorf("no builder signer configured")
	}
	return polymarket.NewLocalBuilderSigner(crypto.FromCredentials(domain.TradingCredentials{
		Key:        cfg.Builder.ApiKey,
		Secret:     cfg.Builder.ApiSecret,
		Passphrase: cfg.Builder.ApiPassphrase,
	})), nil
}
