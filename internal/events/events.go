// Package events carries domain events between the LLM gateway and its
// consumers over NATS JetStream: the canonical envelope, the stream
// registry, a confirmed publisher and a durable pull subscriber.
package events

import "context"

// SubjectQuotaUpdated carries the usage and cost update the LLM gateway
// emits after every request.
const SubjectQuotaUpdated = "quota.updated"

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, subject string, env *Envelope) error
	Close() error
}

// Handler processes one decoded envelope. A nil return acknowledges the
// message; any error negatively acknowledges it for redelivery.
type Handler func(ctx context.Context, env *Envelope) error
