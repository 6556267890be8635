package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestCorrelationID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(CorrelationPrefix) + `[a-zA-Z0-9]{16}$`)
	for i := 0; i < 100; i++ {
		id := CorrelationID()
		if !pattern.MatchString(id) {
			t.Fatalf("CorrelationID() = %q, does not match %s", id, pattern)
		}
	}
}

func TestCorrelationID_Prefix(t *testing.T) {
	if id := CorrelationID(); !strings.HasPrefix(id, CorrelationPrefix) {
		t.Errorf("CorrelationID() = %q, want prefix %q", id, CorrelationPrefix)
	}
}

func TestCorrelationID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := CorrelationID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
