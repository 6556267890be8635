package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alfredjeanlab/quotabus/internal/events"
	"github.com/alfredjeanlab/quotabus/internal/mirror"
)

// ErrMissingTenant is returned for quota events without a tenant ID.
var ErrMissingTenant = errors.New("quota event has no tenant id")

// TTLFor returns how long a mirror record for period stays valid.
// Unrecognised periods get a day.
func TTLFor(period string) time.Duration {
	switch period {
	case PeriodHourly:
		return time.Hour
	case PeriodDaily:
		return 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RecordFromEnvelope maps a quota event onto the mirror record for its
// tenant.
func RecordFromEnvelope(env *events.Envelope) (string, mirror.Record, error) {
	tenantID := env.Tenant()
	if tenantID == "" {
		return "", mirror.Record{}, ErrMissingTenant
	}

	p := env.Payload
	period := stringValue(p["period"])
	if period == "" {
		period = PeriodMonthly
	}

	rec := mirror.Record{
		Limit:         numberString(p["limit"]),
		Used:          numberString(p["used"]),
		Remaining:     numberString(p["remaining"]),
		Period:        period,
		ResetAt:       stringValue(p["resetAt"]),
		LastUpdated:   env.OccurredAtText(),
		SourceEventID: env.EventID,
	}
	return tenantID, rec, nil
}

// numberString renders a payload number without changing its precision.
// Decoded payloads hold json.Number; in-process ones hold Go numerics.
func numberString(v any) string {
	switch n := v.(type) {
	case nil:
		return "0"
	case json.Number:
		return n.String()
	case string:
		if n == "" {
			return "0"
		}
		return n
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return fmt.Sprint(n)
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
