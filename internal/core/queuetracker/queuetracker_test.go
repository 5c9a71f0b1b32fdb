package queuetracker

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUpdateChannelNamespacesByExecutionID(t *testing.T) {
	id := uuid.New()
	if got := updateChannel(id); got != "bifrost:updates:"+id.String() {
		t.Errorf("updateChannel() = %q", got)
	}
}

func TestNewDefaultsNonPositiveSweepMaxAge(t *testing.T) {
	cases := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"zero defaults to 600s", 0, 600 * time.Second},
		{"negative defaults to 600s", -10, 600 * time.Second},
		{"positive value kept", 120, 120 * time.Second},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr := New(nil, c.seconds)
			if tr.sweepMaxAge != c.want {
				t.Errorf("sweepMaxAge = %v, want %v", tr.sweepMaxAge, c.want)
			}
		})
	}
}
