package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/quotabus/internal/events"
	"github.com/alfredjeanlab/quotabus/internal/mirror"
)

// Syncer writes quota events into the mirror. Writes are last-write-wins
// per tenant, so redelivered or reordered events converge to whichever was
// applied last.
type Syncer struct {
	store  mirror.Store
	logger *slog.Logger
}

func NewSyncer(store mirror.Store, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, logger: logger}
}

// Handle is an events.Handler. Events without a tenant are dropped; a
// mirror write failure is returned so the message is redelivered.
func (s *Syncer) Handle(ctx context.Context, env *events.Envelope) error {
	tenantID, rec, err := RecordFromEnvelope(env)
	if errors.Is(err, ErrMissingTenant) {
		s.logger.Warn("dropping quota event without tenant", "event_id", env.EventID)
		return nil
	}
	if err != nil {
		return err
	}

	if env.OccurredAt.IsZero() && rec.LastUpdated != "" {
		s.logger.Warn("unrecognized occurredAt, stored verbatim",
			"event_id", env.EventID, "tenant_id", tenantID, "occurred_at", rec.LastUpdated)
	}

	ttl := TTLFor(rec.Period)
	if err := s.store.Put(ctx, tenantID, rec, ttl); err != nil {
		return fmt.Errorf("writing quota mirror for %s: %w", tenantID, err)
	}

	s.logger.Info("quota synced",
		"event_id", env.EventID,
		"tenant_id", tenantID,
		"used", rec.Used,
		"limit", rec.Limit,
		"period", rec.Period)
	return nil
}
