package stuckmonitor

import (
	"testing"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
)

func TestGraceForCancelling(t *testing.T) {
	exec := models.Execution{Status: models.ExecutionStatusCancelling}
	got := graceFor(exec)
	want := cancellingGraceSeconds * time.Second
	if got != want {
		t.Errorf("graceFor(cancelling) = %v, want %v", got, want)
	}
}

func TestGraceForRunning(t *testing.T) {
	cases := []struct {
		name    string
		timeout int
		want    time.Duration
	}{
		{"normal timeout", 120, (120 + runningGraceMarginSeconds) * time.Second},
		{"zero timeout falls back to default", 0, (30 + runningGraceMarginSeconds) * time.Second},
		{"negative timeout falls back to default", -5, (30 + runningGraceMarginSeconds) * time.Second},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			exec := models.Execution{
				Status:   models.ExecutionStatusRunning,
				Workflow: models.Workflow{TimeoutSeconds: c.timeout},
			}
			got := graceFor(exec)
			if got != c.want {
				t.Errorf("graceFor(running, timeout=%d) = %v, want %v", c.timeout, got, c.want)
			}
		})
	}
}
