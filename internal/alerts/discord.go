package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DiscordSender delivers alerts to a Discord channel via webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title     string              `json:"title,omitempty"`
	Color     int                 `json:"color,omitempty"`
	Fields    []discordEmbedField `json:"fields,omitempty"`
	Timestamp string              `json:"timestamp,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// NewDiscordSender validates the webhook URL and builds the sender.
func NewDiscordSender(webhookURL string) (*DiscordSender, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("discord webhook URL is required")
	}
	if !strings.HasPrefix(webhookURL, "https://discord.com/api/webhooks/") &&
		!strings.HasPrefix(webhookURL, "https://discordapp.com/api/webhooks/") {
		return nil, fmt.Errorf("invalid discord webhook URL format")
	}

	return &DiscordSender{
		webhookURL: webhookURL,
		username:   "PULSE Screener",
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the sender name.
func (s *DiscordSender) Name() string {
	return "discord"
}

// Send posts the alert as an embed to the webhook.
func (s *DiscordSender) Send(ctx context.Context, n Notification, message string) error {
	payload := discordPayload{
		Username: s.username,
		Embeds:   []discordEmbed{s.buildEmbed(n)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *DiscordSender) buildEmbed(n Notification) discordEmbed {
	resilient := "no"
	if n.Resilient {
		resilient = "yes"
	}

	return discordEmbed{
		Title:     fmt.Sprintf("🚨 PULSE #%d: %s (%s)", n.Rank, n.Name, n.Symbol),
		Color:     embedColor(n.Composite),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []discordEmbedField{
			{Name: "Mint", Value: n.Mint, Inline: false},
			{Name: "Composite", Value: fmt.Sprintf("%.2f/10", n.Composite), Inline: true},
			{Name: "Risk", Value: fmt.Sprintf("%.2f", n.Risk), Inline: true},
			{Name: "Dip-resilient", Value: resilient, Inline: true},
			{Name: "1h Volume", Value: fmt.Sprintf("%.0f SOL", n.Volume1hSOL), Inline: true},
			{Name: "Buys/min", Value: fmt.Sprintf("%d", n.Buys1m), Inline: true},
		},
	}
}

// embedColor maps composite score to an embed accent color.
func embedColor(composite float64) int {
	switch {
	case composite >= 7:
		return 0x00FF00
	case composite >= 5:
		return 0xFF6600
	default:
		return 0x0099FF
	}
}
