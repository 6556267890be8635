package quota

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/quotabus/internal/events"
)

// Reporter publishes quota events on behalf of request handlers. Publishing
// is best effort: a failure is logged and never surfaces to the caller.
type Reporter struct {
	pub     events.Publisher
	subject string
	logger  *slog.Logger
}

func NewReporter(pub events.Publisher, subject string, logger *slog.Logger) *Reporter {
	if subject == "" {
		subject = events.SubjectQuotaUpdated
	}
	return &Reporter{pub: pub, subject: subject, logger: logger}
}

// Report publishes u and returns the envelope that was sent.
func (r *Reporter) Report(ctx context.Context, u Usage) *events.Envelope {
	env := NewEvent(ctx, u)
	if err := r.pub.Publish(ctx, r.subject, env); err != nil {
		r.logger.Error("failed to publish quota event",
			"event_id", env.EventID,
			"tenant_id", env.Tenant(),
			"subject", r.subject,
			"err", err)
		return env
	}
	r.logger.Debug("quota event published", "event_id", env.EventID, "tenant_id", env.Tenant(), "subject", r.subject)
	return env
}
