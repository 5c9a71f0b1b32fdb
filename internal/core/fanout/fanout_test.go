package fanout

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResultInboxKeyAndUpdateChannelNamespaceByExecution(t *testing.T) {
	id := uuid.New()
	if got := resultInboxKey(id); got != "bifrost:result:"+id.String() {
		t.Errorf("resultInboxKey() = %q", got)
	}
	if got := updateChannel(id); got != "bifrost:updates:"+id.String() {
		t.Errorf("updateChannel() = %q", got)
	}
}

func TestNewPublisherDefaultsNonPositiveResultTTL(t *testing.T) {
	cases := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"zero defaults to 120s", 0, 120 * time.Second},
		{"negative defaults to 120s", -5, 120 * time.Second},
		{"positive value kept", 30, 30 * time.Second},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := NewPublisher(nil, nil, c.seconds)
			if p.resultTTL != c.want {
				t.Errorf("resultTTL = %v, want %v", p.resultTTL, c.want)
			}
		})
	}
}
