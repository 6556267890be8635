package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamSpec declares an age-limited, subject-partitioned stream.
type StreamSpec struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// Canonical streams, one per domain.
var (
	WorkflowsStream = StreamSpec{
		Name:     "WORKFLOWS",
		Subjects: []string{"workflow.>"},
		MaxAge:   7 * 24 * time.Hour,
	}
	IntegrationsStream = StreamSpec{
		Name:     "INTEGRATIONS",
		Subjects: []string{"integration.>"},
		MaxAge:   7 * 24 * time.Hour,
	}
	QuotasStream = StreamSpec{
		Name:     "QUOTAS",
		Subjects: []string{"quota.>"},
		MaxAge:   30 * 24 * time.Hour,
	}
)

// DefaultStreams returns the canonical stream registry.
func DefaultStreams() []StreamSpec {
	return []StreamSpec{WorkflowsStream, IntegrationsStream, QuotasStream}
}

const (
	declareTimeout  = 5 * time.Second
	duplicateWindow = 2 * time.Minute
)

func (s StreamSpec) config() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       s.Name,
		Subjects:   s.Subjects,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     s.MaxAge,
		Storage:    jetstream.FileStorage,
		Duplicates: duplicateWindow,
	}
}

// DeclareStream makes sure the stream exists with the given config. It is
// safe to race from several processes: a create that loses to another
// process falls back to an update in place. Failures are logged and
// swallowed; a stream that is genuinely unusable surfaces on the first
// publish or subscribe instead. It reports whether the stream is in place.
func DeclareStream(ctx context.Context, js jetstream.JetStream, spec StreamSpec, logger *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, declareTimeout)
	defer cancel()

	cfg := spec.config()
	_, err := js.CreateStream(ctx, cfg)
	if err == nil {
		logger.Info("stream created", "stream", spec.Name, "subjects", spec.Subjects, "max_age", spec.MaxAge)
		return true
	}
	if !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		logger.Warn("stream declaration failed", "stream", spec.Name, "err", err)
		return false
	}

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		logger.Warn("stream update failed, keeping existing config", "stream", spec.Name, "err", err)
		return false
	}
	logger.Debug("stream already present, config updated", "stream", spec.Name)
	return true
}

// DeclaredStream is the outcome of declaring one stream.
type DeclaredStream struct {
	Spec StreamSpec
	OK   bool
}

// DeclareStreams declares every spec in order and reports each outcome.
func DeclareStreams(ctx context.Context, js jetstream.JetStream, logger *slog.Logger, specs ...StreamSpec) []DeclaredStream {
	out := make([]DeclaredStream, 0, len(specs))
	for _, spec := range specs {
		out = append(out, DeclaredStream{Spec: spec, OK: DeclareStream(ctx, js, spec, logger)})
	}
	return out
}
