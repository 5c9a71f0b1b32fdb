// Package secrets implements the SecretRegistry pattern (spec §5 Shared
// resource policy): a worker collects any secret values it materializes
// during a single execution into an in-process set, then redacts them
// from outbound logs and results by prefix match before those values
// ever leave the process.
package secrets

import (
	"strings"
	"sync"
)

const redactedPlaceholder = "[REDACTED]"

// Registry is scoped to a single execution. It is not safe to share
// across concurrent executions; a worker process owns exactly one at a
// time since concurrency=1 per execution pipeline.
type Registry struct {
	mu     sync.RWMutex
	values []string
}

func New() *Registry {
	return &Registry{}
}

// Register records a materialized secret value (an API key, a
// connection string's credential component, a bearer token) so that it
// and any string it prefixes gets redacted going forward. Empty and
// very short values are ignored to avoid redacting common substrings.
func (r *Registry) Register(value string) {
	if len(value) < 6 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.values {
		if v == value {
			return
		}
	}
	r.values = append(r.values, value)
}

// Redact replaces every occurrence of a registered secret, and every
// token prefixed by one, with a placeholder. Longest values are matched
// first so a shorter secret that happens to be a prefix of a longer one
// doesn't partially redact the longer one and leak its suffix.
func (r *Registry) Redact(s string) string {
	r.mu.RLock()
	values := make([]string, len(r.values))
	copy(values, r.values)
	r.mu.RUnlock()

	if len(values) == 0 {
		return s
	}

	sortByLengthDesc(values)

	out := s
	for _, v := range values {
		if v == "" {
			continue
		}
		out = replacePrefixed(out, v)
	}
	return out
}

// RedactMap applies Redact to every string value in a JSON-like map,
// recursing into nested maps and slices, used before a result or log
// metadata payload is persisted or published.
func (r *Registry) RedactMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Registry) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]interface{}:
		return r.RedactMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}

func sortByLengthDesc(values []string) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && len(values[j-1]) < len(values[j]); j-- {
			values[j-1], values[j] = values[j], values[j-1]
		}
	}
}

// replacePrefixed redacts every token prefixed by secret: within each
// whitespace-delimited token that contains it, the text from the secret
// to the end of the token is replaced, and the text before the secret is
// kept ("token=sk-live-abc123:extra" becomes "token=[REDACTED]").
func replacePrefixed(s, secret string) string {
	if !strings.Contains(s, secret) {
		return s
	}
	fields := strings.Fields(s)
	for i, f := range fields {
		if idx := strings.Index(f, secret); idx >= 0 {
			fields[i] = f[:idx] + redactedPlaceholder
		}
	}
	return strings.ReplaceAll(strings.Join(fields, " "), secret, redactedPlaceholder)
}
