package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/quotabus/internal/idgen"
)

// Envelope wraps every domain event with identity, timing and tenant
// context. The JSON field names are a wire contract shared with non-Go
// producers and must not change.
type Envelope struct {
	EventID       string         `json:"eventId"`
	OccurredAt    time.Time      `json:"occurredAt"`
	TenantID      *string        `json:"tenantId"`
	PlatformID    *string        `json:"platformId"`
	CorrelationID string         `json:"correlationId"`
	Actor         *string        `json:"actor"`
	Payload       map[string]any `json:"payload"`

	// occurredAtText holds an occurredAt value that could not be read as
	// a time. OccurredAt is zero in that case.
	occurredAtText string
}

// NewEnvelope stamps a new event ID and occurrence time. Empty optional
// fields are encoded as null.
func NewEnvelope(tenantID, platformID, correlationID, actor string, payload map[string]any) *Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Envelope{
		EventID:       uuid.NewString(),
		OccurredAt:    clock.now(),
		TenantID:      optional(tenantID),
		PlatformID:    optional(platformID),
		CorrelationID: correlationID,
		Actor:         optional(actor),
		Payload:       payload,
	}
}

// Tenant returns the tenant ID, or "" when the event is not tenant scoped.
func (e *Envelope) Tenant() string {
	if e.TenantID == nil {
		return ""
	}
	return *e.TenantID
}

// occurredAtLayouts are tried in order when decoding occurredAt. Python
// producers emit datetime.isoformat() or str(datetime), both of which omit
// the zone for naive UTC timestamps.
var occurredAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON decodes an envelope, keeping payload numbers as
// json.Number so decimal values survive without float rounding. An
// occurredAt that is not a recognised timestamp does not fail decoding; its
// text is kept and returned by OccurredAtText.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type wire Envelope
	var raw struct {
		wire
		OccurredAt json.RawMessage `json:"occurredAt"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*e = Envelope(raw.wire)
	e.OccurredAt, e.occurredAtText = decodeOccurredAt(raw.OccurredAt)
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return nil
}

// decodeOccurredAt reads a timestamp string or Unix seconds. Anything else
// is returned as text with a zero time.
func decodeOccurredAt(data json.RawMessage) (time.Time, string) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}, ""
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			return time.Time{}, ""
		}
		if t, err := parseOccurredAt(s); err == nil {
			return t, ""
		}
		return time.Time{}, s
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if secs, err := n.Float64(); err == nil {
			whole := math.Floor(secs)
			return time.Unix(int64(whole), int64((secs-whole)*1e9)).UTC(), ""
		}
	}
	return time.Time{}, string(data)
}

func parseOccurredAt(s string) (time.Time, error) {
	for _, layout := range occurredAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing occurredAt %q: unrecognized timestamp format", s)
}

// OccurredAtText returns occurredAt as RFC 3339 in UTC, or the producer's
// original text when it was not a recognised timestamp. It is empty when
// the event carried no occurredAt.
func (e *Envelope) OccurredAtText() string {
	if !e.OccurredAt.IsZero() {
		return e.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return e.occurredAtText
}

// DecodeEnvelope parses a broker payload into an Envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// monotonicClock hands out UTC timestamps that never go backwards within
// the process, even if the wall clock is stepped.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

var clock monotonicClock

func (c *monotonicClock) now() time.Time {
	t := time.Now().UTC().Round(0)
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// RequestMeta is the request-scoped identity copied into every envelope a
// request handler emits.
type RequestMeta struct {
	TenantID      string
	PlatformID    string
	CorrelationID string
	Actor         string
}

type requestMetaKey struct{}

// WithRequestMeta returns a child context carrying meta.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the metadata stored by WithRequestMeta, or the
// zero value.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// NewEnvelopeFromContext builds an envelope from the request metadata in
// ctx. Requests without a correlation ID get a freshly issued one.
func NewEnvelopeFromContext(ctx context.Context, payload map[string]any) *Envelope {
	meta := RequestMetaFrom(ctx)
	if meta.CorrelationID == "" {
		meta.CorrelationID = idgen.CorrelationID()
	}
	return NewEnvelope(meta.TenantID, meta.PlatformID, meta.CorrelationID, meta.Actor, payload)
}
