package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slack-go/slack"
	"github.com/spf13/viper"
)

// Event types
const (
	EventSubmit      = "on_submit"
	EventOutputQueue = "on_output_queue"
	EventFailure     = "on_failure"
)

// slackPoster is the slice of the Slack API the manager uses.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Manager sends job events to a Slack channel, gated per event type by
// configuration.
type Manager struct {
	client    slackPoster
	channelID string
}

// NewManager builds a manager from the notifications configuration. Slack
// stays disabled without both the enabled flag and a bot token, in which
// case every Notify is a no-op.
func NewManager() *Manager {
	m := &Manager{}

	if !viper.GetBool("notifications.slack.enabled") {
		return m
	}

	botToken := os.Getenv("SLACK_BOT_USER_TOKEN")
	if botToken == "" {
		slog.Warn("SLACK_BOT_USER_TOKEN not set, slack notifications disabled")
		return m
	}

	m.client = slack.New(botToken)
	m.channelID = viper.GetString("notifications.slack.channel")
	return m
}

// Enabled reports whether any provider is configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

func (m *Manager) isEventEnabled(eventType string) bool {
	return viper.GetBool("notifications.slack.events." + eventType)
}

// Notify sends the message if the provider is configured and the event type
// is enabled. Delivery failures are returned, not retried.
func (m *Manager) Notify(ctx context.Context, eventType string, message string) error {
	if m.client == nil {
		return nil
	}
	if !m.isEventEnabled(eventType) {
		slog.Debug("notification suppressed", "event", eventType)
		return nil
	}

	_, _, err := m.client.PostMessageContext(ctx, m.channelID,
		slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("slack notification failed: %w", err)
	}

	slog.Debug("notification sent", "event", eventType, "channel", m.channelID)
	return nil
}
