package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEnvelope_Fields(t *testing.T) {
	payload := map[string]any{"used": 250}
	before := time.Now().UTC()
	env := NewEnvelope("acme", "web", "req-1", "user-42", payload)

	if _, err := uuid.Parse(env.EventID); err != nil {
		t.Errorf("EventID = %q is not a UUID: %v", env.EventID, err)
	}
	if env.OccurredAt.Location() != time.UTC {
		t.Errorf("OccurredAt location = %v, want UTC", env.OccurredAt.Location())
	}
	if env.OccurredAt.Before(before.Add(-time.Second)) {
		t.Errorf("OccurredAt = %v, too far before %v", env.OccurredAt, before)
	}
	if env.Tenant() != "acme" {
		t.Errorf("Tenant() = %q, want %q", env.Tenant(), "acme")
	}
	if env.PlatformID == nil || *env.PlatformID != "web" {
		t.Errorf("PlatformID = %v, want web", env.PlatformID)
	}
	if env.CorrelationID != "req-1" {
		t.Errorf("CorrelationID = %q, want %q", env.CorrelationID, "req-1")
	}
	if env.Actor == nil || *env.Actor != "user-42" {
		t.Errorf("Actor = %v, want user-42", env.Actor)
	}
	if env.Payload["used"] != 250 {
		t.Errorf("Payload[used] = %v, want 250", env.Payload["used"])
	}
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		env := NewEnvelope("", "", "", "", nil)
		if seen[env.EventID] {
			t.Fatalf("duplicate event ID %q", env.EventID)
		}
		seen[env.EventID] = true
	}
}

func TestNewEnvelope_OccurredAtNonDecreasing(t *testing.T) {
	prev := NewEnvelope("", "", "", "", nil).OccurredAt
	for i := 0; i < 1000; i++ {
		next := NewEnvelope("", "", "", "", nil).OccurredAt
		if next.Before(prev) {
			t.Fatalf("occurredAt went backwards: %v after %v", next, prev)
		}
		prev = next
	}
}

func TestEnvelope_WireFormat(t *testing.T) {
	env := NewEnvelope("acme", "", "req-9", "", map[string]any{"limit": 1000})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"eventId", "occurredAt", "tenantId", "platformId", "correlationId", "actor", "payload"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire format missing key %q in %s", key, data)
		}
	}
	if len(raw) != 7 {
		t.Errorf("wire format has %d keys, want 7: %s", len(raw), data)
	}
	if raw["platformId"] != nil {
		t.Errorf("platformId = %v, want null", raw["platformId"])
	}
	if raw["actor"] != nil {
		t.Errorf("actor = %v, want null", raw["actor"])
	}
}

func TestDecodeEnvelope(t *testing.T) {
	for _, tc := range []struct {
		name       string
		data       string
		wantErr    bool
		wantTenant string
		wantTime   time.Time
		wantText   string
	}{
		{
			name:       "RFC3339",
			data:       `{"eventId":"e1","occurredAt":"2025-03-01T10:00:00Z","tenantId":"acme","correlationId":"c","payload":{}}`,
			wantTenant: "acme",
			wantTime:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:       "OffsetIsNormalizedToUTC",
			data:       `{"eventId":"e1","occurredAt":"2025-03-01T12:00:00.5+02:00","tenantId":"acme","correlationId":"c","payload":{}}`,
			wantTenant: "acme",
			wantTime:   time.Date(2025, 3, 1, 10, 0, 0, 500_000_000, time.UTC),
		},
		{
			name:     "NaiveTimestamp",
			data:     `{"eventId":"e1","occurredAt":"2025-03-01T10:00:00.123456","correlationId":"c","payload":{}}`,
			wantTime: time.Date(2025, 3, 1, 10, 0, 0, 123_456_000, time.UTC),
		},
		{
			name: "NullTenant",
			data: `{"eventId":"e1","tenantId":null,"correlationId":"c","payload":{"used":1}}`,
		},
		{
			name:    "NotJSON",
			data:    `not json`,
			wantErr: true,
		},
		{
			name:    "Array",
			data:    `[1,2,3]`,
			wantErr: true,
		},
		{
			name:     "SpaceSeparatedNaive",
			data:     `{"eventId":"e1","occurredAt":"2024-01-01 12:00:00","payload":{}}`,
			wantTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			wantText: "2024-01-01T12:00:00Z",
		},
		{
			name:     "SpaceSeparatedWithZone",
			data:     `{"eventId":"e1","occurredAt":"2024-01-01 14:00:00+02:00","payload":{}}`,
			wantTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			wantText: "2024-01-01T12:00:00Z",
		},
		{
			name:     "UnixSeconds",
			data:     `{"eventId":"e1","occurredAt":1704110400,"payload":{}}`,
			wantTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			wantText: "2024-01-01T12:00:00Z",
		},
		{
			name:     "UnrecognizedTimestampKeptAsText",
			data:     `{"eventId":"e1","occurredAt":"yesterday","payload":{}}`,
			wantText: "yesterday",
		},
		{
			name:     "NonStringTimestampKeptAsText",
			data:     `{"eventId":"e1","occurredAt":{"ts":1},"payload":{}}`,
			wantText: `{"ts":1}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tc.data))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.Tenant() != tc.wantTenant {
				t.Errorf("Tenant() = %q, want %q", env.Tenant(), tc.wantTenant)
			}
			if !env.OccurredAt.Equal(tc.wantTime) {
				t.Errorf("OccurredAt = %v, want %v", env.OccurredAt, tc.wantTime)
			}
			if tc.wantText != "" && env.OccurredAtText() != tc.wantText {
				t.Errorf("OccurredAtText() = %q, want %q", env.OccurredAtText(), tc.wantText)
			}
			if env.Payload == nil {
				t.Error("Payload is nil, want empty map")
			}
		})
	}
}

func TestDecodeEnvelope_PreservesNumbers(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"eventId":"e1","payload":{"limit":12345678901234567890,"cost":0.1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := env.Payload["limit"].(json.Number)
	if !ok {
		t.Fatalf("limit has type %T, want json.Number", env.Payload["limit"])
	}
	if n.String() != "12345678901234567890" {
		t.Errorf("limit = %s, want 12345678901234567890", n)
	}
	if c := env.Payload["cost"].(json.Number).String(); c != "0.1" {
		t.Errorf("cost = %s, want 0.1", c)
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := NewEnvelope("acme", "web", "req-1", "bob", map[string]any{"period": "daily"})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != env.EventID || got.Tenant() != "acme" || got.CorrelationID != "req-1" {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if !got.OccurredAt.Equal(env.OccurredAt) {
		t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, env.OccurredAt)
	}
}

func TestRequestMeta(t *testing.T) {
	if got := RequestMetaFrom(context.Background()); got != (RequestMeta{}) {
		t.Errorf("RequestMetaFrom(empty) = %+v, want zero", got)
	}

	meta := RequestMeta{TenantID: "acme", PlatformID: "web", CorrelationID: "req-7", Actor: "bob"}
	ctx := WithRequestMeta(context.Background(), meta)
	if got := RequestMetaFrom(ctx); got != meta {
		t.Errorf("RequestMetaFrom = %+v, want %+v", got, meta)
	}

	env := NewEnvelopeFromContext(ctx, map[string]any{"used": 1})
	if env.Tenant() != "acme" || env.CorrelationID != "req-7" || *env.Actor != "bob" || *env.PlatformID != "web" {
		t.Errorf("envelope does not carry request meta: %+v", env)
	}
}

func TestNewEnvelopeFromContext_IssuesCorrelationID(t *testing.T) {
	ctx := WithRequestMeta(context.Background(), RequestMeta{TenantID: "acme"})
	env := NewEnvelopeFromContext(ctx, nil)
	if !strings.HasPrefix(env.CorrelationID, "req-") {
		t.Errorf("CorrelationID = %q, want generated req- prefix", env.CorrelationID)
	}
}
