package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestWithRequestIDAttachesField(t *testing.T) {
	var buf bytes.Buffer
	restore := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = restore }()

	WithRequestID("req-123").Info().Msg("handled")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", entry["request_id"])
	}
}

func TestWithContextAttachesArbitraryFields(t *testing.T) {
	var buf bytes.Buffer
	restore := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = restore }()

	WithContext(map[string]interface{}{"attempt": 3}).Info().Msg("retry")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["attempt"] != float64(3) {
		t.Errorf("attempt = %v, want 3", entry["attempt"])
	}
}

func TestInitSetsDebugLevelWhenRequested(t *testing.T) {
	restore := log.Logger
	defer func() { log.Logger = restore }()

	Init("production", true)
	if log.Logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", log.Logger.GetLevel())
	}

	Init("production", false)
	if log.Logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", log.Logger.GetLevel())
	}
}
