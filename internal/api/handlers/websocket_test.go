package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	ws "github.com/bifrostlabs/bifrost/internal/api/websocket"
)

func TestCheckOriginAllowsAllWhenUnconfigured(t *testing.T) {
	h := NewWebSocketHandler(ws.NewHub(), nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	if !h.checkOrigin(r) {
		t.Error("unconfigured allowlist should accept any origin")
	}
}

func TestCheckOriginAllowsMissingOriginHeader(t *testing.T) {
	h := NewWebSocketHandlerWithOrigins(ws.NewHub(), nil, []string{"https://app.bifrost.dev"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !h.checkOrigin(r) {
		t.Error("requests without an Origin header should be treated as same-origin")
	}
}

func TestCheckOriginExactMatch(t *testing.T) {
	h := NewWebSocketHandlerWithOrigins(ws.NewHub(), nil, []string{"https://app.bifrost.dev"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://app.bifrost.dev")
	if !h.checkOrigin(r) {
		t.Error("exact origin match should be allowed")
	}
}

func TestCheckOriginWildcardSubdomain(t *testing.T) {
	h := NewWebSocketHandlerWithOrigins(ws.NewHub(), nil, []string{"*.bifrost.dev"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://staging.bifrost.dev")
	if !h.checkOrigin(r) {
		t.Error("subdomain of an allowed wildcard should be allowed")
	}
}

func TestCheckOriginRejectsUnlisted(t *testing.T) {
	h := NewWebSocketHandlerWithOrigins(ws.NewHub(), nil, []string{"https://app.bifrost.dev"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://attacker.example.com")
	if h.checkOrigin(r) {
		t.Error("origin outside the allowlist should be rejected")
	}
}

func TestCheckOriginRejectsMalformedOrigin(t *testing.T) {
	h := NewWebSocketHandlerWithOrigins(ws.NewHub(), nil, []string{"https://app.bifrost.dev"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://app.bifrost.dev/%zz")
	if h.checkOrigin(r) {
		t.Error("malformed origin header should be rejected")
	}
}
