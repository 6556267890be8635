package events

import (
	"context"
	"log/slog"
)

// NoopPublisher is a Publisher that only logs (used when NATS is not configured).
type NoopPublisher struct {
	Logger *slog.Logger
}

func (n *NoopPublisher) Publish(ctx context.Context, subject string, env *Envelope) error {
	if n.Logger != nil {
		n.Logger.Debug("event not published (no broker configured)",
			"subject", subject, "event_id", env.EventID, "tenant_id", env.Tenant())
	}
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
