package service

import (
	"errors"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// Notification event names, matched against notify.events in config.
const (
	EventRelayerFailed    = "relayer_failed"
	EventRelayerTimeout   = "relayer_timeout"
	EventCredentialsReset = "credentials_reset"
	EventWalletDeployed   = "wallet_deployed"
)

// relayerEvent returns the notification event for a relayer error, or "" if
// err is not a relayer outcome worth alerting on.
func relayerEvent(err error) string {
	switch {
	case errors.Is(err, domain.ErrRelayerTimeout):
		return EventRelayerTimeout
	case errors.Is(err, domain.ErrRelayerFailed):
		return EventRelayerFailed
	default:
		return ""
	}
}
