package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/metrics"
	"github.com/alanyoungcy/polyonboard/internal/platform/polymarket"
	"github.com/alanyoungcy/polyonboard/internal/session"
)

// CredentialAPI is the CLOB's key-management surface.
type CredentialAPI interface {
	DeriveAPIKey(ctx context.Context, signer polymarket.AuthSigner, nonce int64) (domain.TradingCredentials, error)
	CreateAPIKey(ctx context.Context, signer polymarket.AuthSigner, nonce int64) (domain.TradingCredentials, error)
	DeleteAPIKey(ctx context.Context, address common.Address, creds domain.TradingCredentials) error
}

// CredentialOptions tunes the shared cache and reset lock.
type CredentialOptions struct {
	CacheTTL     time.Duration
	ResetLockTTL time.Duration
}

// CredentialService derives and resets trading credentials and keeps the
// session state current. Cache, locks, audit and notifier may be nil.
type CredentialService struct {
	api      CredentialAPI
	signer   polymarket.AuthSigner
	state    *session.State
	cache    domain.CredentialCache
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier Notifier
	opts     CredentialOptions
	logger   *slog.Logger
}

// NewCredentialService creates a CredentialService for signer.
func NewCredentialService(
	api CredentialAPI,
	signer polymarket.AuthSigner,
	state *session.State,
	cache domain.CredentialCache,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier Notifier,
	opts CredentialOptions,
	logger *slog.Logger,
) *CredentialService {
	if opts.ResetLockTTL <= 0 {
		opts.ResetLockTTL = 30 * time.Second
	}
	return &CredentialService{
		api:      api,
		signer:   signer,
		state:    state,
		cache:    cache,
		locks:    locks,
		audit:    audit,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With(slog.String("component", "credential_service")),
	}
}

// Scope returns the credential scope for trading with funder. The ClobAuth
// signature covers the signer only; the funder is part of the scope key so
// keys issued for one funder are never reused for another (see DESIGN.md,
// "Funder in derivation").
func (s *CredentialService) Scope(funder common.Address) domain.CredentialScope {
	return domain.CredentialScope{Signer: s.signer.Address(), Funder: funder}
}

// Derive obtains the deterministic credentials for (signer, funder). If the
// CLOB has never issued a key for the signer, one is created. Calling Derive
// repeatedly returns equivalent credentials.
func (s *CredentialService) Derive(ctx context.Context, funder common.Address, rep *Reporter) (domain.TradingCredentials, error) {
	scope := s.Scope(funder)

	rep.Emit(domain.StageSigning, "signing credential request", nil)
	creds, err := s.api.DeriveAPIKey(ctx, s.signer, 0)
	if errors.Is(err, polymarket.ErrBadRequest) || errors.Is(err, domain.ErrNotFound) {
		s.logger.InfoContext(ctx, "credential_service: no key to derive, creating one",
			slog.String("scope", scope.Key()),
		)
		creds, err = s.api.CreateAPIKey(ctx, s.signer, 0)
	}
	if err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("credential_service: derive: %w", err)
	}

	creds.Scope = scope
	s.store(ctx, creds)
	return creds, nil
}

// Cached returns the credentials for funder held in the session or the shared
// cache. It never contacts the CLOB; domain.ErrNoCredentials means none are
// held.
func (s *CredentialService) Cached(ctx context.Context, funder common.Address) (domain.TradingCredentials, error) {
	scope := s.Scope(funder)
	if c, ok := s.state.Get(scope); ok {
		return c, nil
	}
	if s.cache != nil {
		c, err := s.cache.Get(ctx, scope)
		if err == nil && c.Valid() && c.Scope == scope {
			s.state.Set(c)
			return c, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "credential_service: cache read failed", slog.String("error", err.Error()))
		}
	}
	return domain.TradingCredentials{}, fmt.Errorf("credential_service: %s: %w", scope.Key(), domain.ErrNoCredentials)
}

// Current returns the cached credentials for funder and derives them as a
// last resort. Deriving may create a key on the CLOB, so read-only paths use
// Cached instead.
func (s *CredentialService) Current(ctx context.Context, funder common.Address) (domain.TradingCredentials, error) {
	if c, err := s.Cached(ctx, funder); err == nil {
		return c, nil
	}
	return s.Derive(ctx, funder, nil)
}

// Reset revokes the current key for funder and issues a new one. It is not
// idempotent: every call invalidates the previous key. Resets of the same
// scope are serialized across processes when a lock manager is configured.
func (s *CredentialService) Reset(ctx context.Context, funder common.Address, rep *Reporter) (domain.TradingCredentials, error) {
	scope := s.Scope(funder)

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "creds:reset:"+scope.Key(), s.opts.ResetLockTTL)
		if err != nil {
			return domain.TradingCredentials{}, fmt.Errorf("credential_service: reset lock: %w", err)
		}
		defer unlock()
	}

	if old, ok := s.state.Get(scope); ok {
		rep.Emit(domain.StageSubmitting, "revoking previous API key", nil)
		if err := s.api.DeleteAPIKey(ctx, s.signer.Address(), old); err != nil {
			// The server may already consider the key dead.
			s.logger.WarnContext(ctx, "credential_service: revoke old key failed",
				slog.String("scope", scope.Key()),
				slog.String("error", err.Error()),
			)
		}
	}

	rep.Emit(domain.StageSigning, "signing new credential request", nil)
	creds, err := s.api.CreateAPIKey(ctx, s.signer, 0)
	if err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("credential_service: reset: %w", err)
	}
	creds.Scope = scope
	s.store(ctx, creds)
	metrics.CredentialResets.Inc()

	s.logger.InfoContext(ctx, "credential_service: credentials reset", slog.String("scope", scope.Key()))
	if s.audit != nil {
		if err := s.audit.Log(ctx, "credentials_reset", funder.Hex(), map[string]any{
			"signer": scope.Signer.Hex(),
		}); err != nil {
			s.logger.WarnContext(ctx, "credential_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, EventCredentialsReset, "Trading credentials reset", scope.String()); err != nil {
			s.logger.WarnContext(ctx, "credential_service: notify failed", slog.String("error", err.Error()))
		}
	}
	return creds, nil
}

// store swaps creds into the session and refreshes the shared cache.
func (s *CredentialService) store(ctx context.Context, creds domain.TradingCredentials) {
	s.state.Swap(creds)
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, creds, s.opts.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "credential_service: cache write failed", slog.String("error", err.Error()))
	}
}
