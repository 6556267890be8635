// Package quota turns usage reports into quota events on the producer side
// and folds quota events into the gateway's quota mirror on the consumer
// side.
package quota

import (
	"context"
	"time"

	"github.com/alfredjeanlab/quotabus/internal/events"
)

// Quota periods understood by the gateway.
const (
	PeriodHourly  = "hourly"
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// Tokens is the token breakdown of a single LLM call.
type Tokens struct {
	Prompt     int64
	Completion int64
	Total      int64
}

// Usage is one quota observation for the tenant in the request context.
// Zero-valued optional fields are left out of the event payload.
type Usage struct {
	Limit     int64
	Used      int64
	Remaining int64
	Period    string
	ResetAt   time.Time

	Model     string
	Tokens    *Tokens
	Cost      float64
	LatencyMs int64
	Error     map[string]any
}

// Payload returns the event payload for u.
func (u Usage) Payload() map[string]any {
	period := u.Period
	if period == "" {
		period = PeriodMonthly
	}
	p := map[string]any{
		"limit":     u.Limit,
		"used":      u.Used,
		"remaining": u.Remaining,
		"period":    period,
	}
	if !u.ResetAt.IsZero() {
		p["resetAt"] = u.ResetAt.UTC().Format(time.RFC3339)
	}
	if u.Model != "" {
		p["model"] = u.Model
	}
	if u.Tokens != nil {
		p["tokens"] = map[string]any{
			"prompt":     u.Tokens.Prompt,
			"completion": u.Tokens.Completion,
			"total":      u.Tokens.Total,
		}
	}
	if u.Cost != 0 {
		p["cost"] = u.Cost
	}
	if u.LatencyMs != 0 {
		p["latencyMs"] = u.LatencyMs
	}
	if u.Error != nil {
		p["error"] = u.Error
	}
	return p
}

// NewEvent wraps u in an envelope carrying the request metadata from ctx.
func NewEvent(ctx context.Context, u Usage) *events.Envelope {
	return events.NewEnvelopeFromContext(ctx, u.Payload())
}
