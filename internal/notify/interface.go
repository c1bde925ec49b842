// Package notify pushes job lifecycle events to Slack so operators see
// submissions and failures without tailing the daemon log.
package notify

import "context"

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Notify(ctx context.Context, eventType string, message string) error
}

// Nop is the disabled notifier.
type Nop struct{}

// Notify discards the event.
func (Nop) Notify(ctx context.Context, eventType string, message string) error { return nil }
