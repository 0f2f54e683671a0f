package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Embed colours by event.
const (
	colorRed    = 0xE74C3C
	colorOrange = 0xE67E22
	colorGreen  = 0x2ECC71
	colorBlue   = 0x3498DB
)

// DiscordSender delivers alerts through a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient()}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Send posts msg as a single embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       eventColor(msg.Event),
	}
	if !msg.At.IsZero() {
		embed.Timestamp = msg.At.Format("2006-01-02T15:04:05Z07:00")
	}
	if err := postJSON(ctx, d.client, d.webhookURL, map[string]any{"embeds": []discordEmbed{embed}}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func eventColor(event string) int {
	switch event {
	case "relayer_failed":
		return colorRed
	case "relayer_timeout":
		return colorOrange
	case "wallet_deployed":
		return colorGreen
	default:
		return colorBlue
	}
}
