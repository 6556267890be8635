// Package mirror owns the write contract of the quota mirror: one Redis
// hash per tenant that the API gateway reads for quota enforcement.
//
// The hash field names are consumed by a gateway plugin outside this
// repository and form a fixed wire contract.
package mirror

import (
	"context"
	"errors"
	"time"
)

// DefaultKeyPrefix is prepended to the tenant ID to form the hash key.
const DefaultKeyPrefix = "quota:tenant:"

// Hash field names.
const (
	FieldLimit       = "limit"
	FieldUsed        = "used"
	FieldRemaining   = "remaining"
	FieldPeriod      = "period"
	FieldResetAt     = "reset_at"
	FieldLastUpdated = "last_updated"
	FieldEventID     = "event_id"
)

// ErrNotFound is returned by Get when no record exists for the tenant.
var ErrNotFound = errors.New("quota record not found")

// Record is the mirrored quota state for one tenant. Numeric values are
// decimal strings so that no precision is lost between producer and gateway.
type Record struct {
	Limit         string `json:"limit"`
	Used          string `json:"used"`
	Remaining     string `json:"remaining"`
	Period        string `json:"period"`
	ResetAt       string `json:"reset_at"`
	LastUpdated   string `json:"last_updated"`
	SourceEventID string `json:"event_id"`
}

// Fields returns the record as hash fields. Every field is always written
// so an update fully replaces the previous state.
func (r Record) Fields() map[string]any {
	return map[string]any{
		FieldLimit:       r.Limit,
		FieldUsed:        r.Used,
		FieldRemaining:   r.Remaining,
		FieldPeriod:      r.Period,
		FieldResetAt:     r.ResetAt,
		FieldLastUpdated: r.LastUpdated,
		FieldEventID:     r.SourceEventID,
	}
}

func recordFromHash(h map[string]string) Record {
	return Record{
		Limit:         h[FieldLimit],
		Used:          h[FieldUsed],
		Remaining:     h[FieldRemaining],
		Period:        h[FieldPeriod],
		ResetAt:       h[FieldResetAt],
		LastUpdated:   h[FieldLastUpdated],
		SourceEventID: h[FieldEventID],
	}
}

// Key returns the hash key for tenantID under prefix.
func Key(prefix, tenantID string) string {
	return prefix + tenantID
}

// Store writes and reads mirror records.
type Store interface {
	// Put replaces the tenant's record and sets its expiry to ttl.
	Put(ctx context.Context, tenantID string, rec Record, ttl time.Duration) error
	// Get returns the tenant's record or ErrNotFound.
	Get(ctx context.Context, tenantID string) (*Record, error)
	// TTL returns the remaining lifetime of the tenant's record.
	TTL(ctx context.Context, tenantID string) (time.Duration, error)
	Close() error
}
