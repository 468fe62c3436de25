package application

import "context"

// Notifier delivers operator alerts such as "credentials rejected" or
// "scale data unavailable".
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NoopNotifier drops every alert. The Coordinator uses it when no notifier
// is configured.
type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}
