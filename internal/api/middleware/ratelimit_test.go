package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bifrostlabs/bifrost/internal/pkg/crypto"
	"github.com/google/uuid"
)

func TestGetKeyPrefersAuthenticatedUser(t *testing.T) {
	rl := &RateLimiter{}
	claims := &crypto.Claims{UserID: uuid.New()}
	ctx := context.WithValue(context.Background(), UserContextKey, claims)
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	want := "ratelimit:user:" + claims.UserID.String()
	if got := rl.getKey(r); got != want {
		t.Errorf("getKey() = %q, want %q", got, want)
	}
}

func TestGetKeyFallsBackToRemoteAddr(t *testing.T) {
	rl := &RateLimiter{}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:54321"

	want := "ratelimit:ip:203.0.113.5:54321"
	if got := rl.getKey(r); got != want {
		t.Errorf("getKey() = %q, want %q", got, want)
	}
}

func TestGetKeyPrefersForwardedFor(t *testing.T) {
	rl := &RateLimiter{}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:54321"
	r.Header.Set("X-Forwarded-For", "198.51.100.9")

	want := "ratelimit:ip:198.51.100.9"
	if got := rl.getKey(r); got != want {
		t.Errorf("getKey() = %q, want %q", got, want)
	}
}
