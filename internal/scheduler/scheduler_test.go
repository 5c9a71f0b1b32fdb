package scheduler

import (
	"testing"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
)

func TestDueAtReturnsZeroValueWhenUnset(t *testing.T) {
	wf := models.Workflow{}
	if got := dueAt(wf); !got.IsZero() {
		t.Errorf("dueAt() = %v, want zero time", got)
	}
}

func TestDueAtReturnsNextDueAtWhenSet(t *testing.T) {
	next := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wf := models.Workflow{NextDueAt: &next}
	if got := dueAt(wf); !got.Equal(next) {
		t.Errorf("dueAt() = %v, want %v", got, next)
	}
}
