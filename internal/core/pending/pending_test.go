package pending

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestKeyNamespacesByExecutionID(t *testing.T) {
	id := uuid.New()
	if got := key(id); got != keyPrefix+id.String() {
		t.Errorf("key() = %q, want %q", got, keyPrefix+id.String())
	}
}

func TestNewStoreDefaultsNonPositiveTTL(t *testing.T) {
	cases := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"zero defaults to 600s", 0, 600 * time.Second},
		{"negative defaults to 600s", -1, 600 * time.Second},
		{"positive value kept", 45, 45 * time.Second},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewStore(nil, c.seconds)
			if s.ttl != c.want {
				t.Errorf("ttl = %v, want %v", s.ttl, c.want)
			}
		})
	}
}
