package webhook

import (
	"testing"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
)

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 300 * time.Second}, // capped
	}

	for _, c := range cases {
		got := backoff(c.attempt)
		if got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestEvaluateFilter(t *testing.T) {
	payload := models.JSON{
		"action": "opened",
		"repository": map[string]interface{}{
			"name": "bifrost",
		},
	}

	cases := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{"matches string equality", `action == "opened"`, true, false},
		{"does not match", `action == "closed"`, false, false},
		{"nested field access", `repository.name == "bifrost"`, true, false},
		{"invalid expression", `action ==`, false, true},
		{"non-boolean result", `action`, false, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := evaluateFilter(c.expr, payload)
			if (err != nil) != c.wantErr {
				t.Fatalf("evaluateFilter(%q) error = %v, wantErr %v", c.expr, err, c.wantErr)
			}
			if err == nil && got != c.want {
				t.Errorf("evaluateFilter(%q) = %v, want %v", c.expr, got, c.want)
			}
		})
	}
}

func TestUnmarshalPayload(t *testing.T) {
	var out models.JSON
	if err := unmarshalPayload([]byte(`{"a":1}`), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["a"].(float64) != 1 {
		t.Errorf("got %v, want a=1", out)
	}

	var empty models.JSON
	if err := unmarshalPayload(nil, &empty); err != nil {
		t.Fatalf("unexpected error on empty body: %v", err)
	}
	if empty == nil {
		t.Error("expected empty body to produce an empty non-nil map")
	}
}
