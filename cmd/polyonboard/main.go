// Command polyonboard turns an EOA into a funded, exchange-approved trading
// account and submits orders through the relayer. It loads configuration,
// validates it, wires dependencies, sets up signal handling, and starts the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/polyonboard/internal/app"
	"github.com/alanyoungcy/polyonboard/internal/config"
	"github.com/alanyoungcy/polyonboard/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (server, onboard, check)")
	sealTo := flag.String("seal-key", "", "encrypt wallet.private_key with wallet.key_password to this path and exit")
	flag.Parse()

	// Logs go to stderr so onboard and check can write JSON results to stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	if *sealTo != "" {
		if err := sealOwnerKey(cfg, *sealTo); err != nil {
			logger.Error("failed to seal owner key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("owner key sealed", slog.String("path", *sealTo))
		return
	}

	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("polyonboard starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("polyonboard stopped")
}

// sealOwnerKey writes the configured raw key as a password-protected
// keystore, for use as wallet.encrypted_key_path.
func sealOwnerKey(cfg *config.Config, path string) error {
	if cfg.Wallet.PrivateKey == "" || cfg.Wallet.KeyPassword == "" {
		return errors.New("wallet.private_key and wallet.key_password are required")
	}
	sealed, err := crypto.SealOwnerKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
