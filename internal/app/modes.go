package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/server"
	"github.com/alanyoungcy/polyonboard/internal/server/handler"
	"github.com/alanyoungcy/polyonboard/internal/server/ws"
	"github.com/alanyoungcy/polyonboard/internal/service"
)

// ServerMode serves the HTTP API and the progress WebSocket until ctx is
// cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.String("wallet", deps.Funder.Hex()),
		slog.String("owner", deps.Signer.Address().Hex()),
	)

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.root, ws.Config{
			Mode:           a.cfg.Mode,
			Channels:       []string{service.ProgressChannel, service.OrdersChannel},
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			StartedAt:      time.Now().UTC(),
		})
		g.Go(func() error { return hub.Run(ctx) })
	} else {
		a.logger.WarnContext(ctx, "redis disabled: /ws progress stream unavailable")
	}

	g.Go(func() error {
		return deps.Executor.Dedup().SweepLoop(ctx, time.Minute)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, a.handlers(deps), hub, deps.RateLimiter, a.root)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if deps.Notifier.Enabled() {
		if err := deps.Notifier.NotifyAll(ctx, "polyonboard started", "wallet "+deps.Funder.Hex()); err != nil {
			a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
		}
	}

	return g.Wait()
}

func (a *App) handlers(deps *Dependencies) server.Handlers {
	h := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Checks, a.root),
		Wallet:      handler.NewWalletHandler(deps.Wallets, deps.SignalBus, a.root),
		Approvals:   handler.NewApprovalHandler(deps.Approvals, deps.Executor.Wallet(), deps.SignalBus, a.root),
		Credentials: handler.NewCredentialHandler(deps.Credentials, deps.Funder, deps.SignalBus, a.root),
		Orders:      handler.NewOrderHandler(deps.Orders, deps.SignalBus, a.root),
		Balances:    handler.NewBalanceHandler(deps.Balances, deps.Funder, a.root),
		Onboard:     handler.NewOnboardHandler(deps.Onboard, deps.SignalBus, a.root),
	}
	if deps.AuditStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, a.root)
	}
	if deps.Receipts != nil {
		h.Receipts = handler.NewReceiptHandler(deps.Receipts, a.root)
	}
	return h
}

// OnboardMode runs the full onboarding sequence once, logging progress as it
// happens, and writes the result as JSON to stdout.
func (a *App) OnboardMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting onboard mode", slog.String("owner", deps.Signer.Address().Hex()))

	op := service.Start(ctx, domain.OpOnboard, deps.Onboard.Onboard)
	res, err := service.Publish(ctx, op, deps.SignalBus, a.logger, func(ev domain.ProgressEvent) {
		logProgress(ctx, a.logger, ev)
	})
	if err != nil {
		return fmt.Errorf("app: onboard: %w", err)
	}
	return writeResult(os.Stdout, res)
}

// CheckMode reports wallet, approval and balance status without changing
// anything.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	st, err := deps.Onboard.Status(ctx)
	if err != nil {
		return fmt.Errorf("app: check: %w", err)
	}
	a.logger.InfoContext(ctx, "account status",
		slog.String("wallet", st.Wallet.Address.Hex()),
		slog.Bool("deployed", st.Wallet.Deployed),
		slog.Bool("all_approved", st.AllApproved),
	)
	return writeResult(os.Stdout, st)
}

func logProgress(ctx context.Context, logger *slog.Logger, ev domain.ProgressEvent) {
	level := slog.LevelInfo
	if ev.Stage == domain.StageFailed {
		level = slog.LevelError
	}
	attrs := []any{
		slog.String("operation", string(ev.Operation)),
		slog.String("stage", string(ev.Stage)),
	}
	if len(ev.Detail) > 0 {
		attrs = append(attrs, slog.Any("detail", ev.Detail))
	}
	logger.Log(ctx, level, ev.Message, attrs...)
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
