package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/pkg/crypto"
	"github.com/google/uuid"
)

func TestHashAPIKeyIsDeterministicSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("test-key"))
	want := hex.EncodeToString(sum[:])
	if got := hashAPIKey("test-key"); got != want {
		t.Errorf("hashAPIKey() = %q, want %q", got, want)
	}
	if hashAPIKey("test-key") != hashAPIKey("test-key") {
		t.Error("hashAPIKey should be deterministic for the same input")
	}
	if hashAPIKey("a") == hashAPIKey("b") {
		t.Error("hashAPIKey should differ for different inputs")
	}
}

func TestGetCallerFromContextMissing(t *testing.T) {
	if got := GetCallerFromContext(context.Background()); got != (authz.Caller{}) {
		t.Errorf("GetCallerFromContext(empty ctx) = %+v, want zero value", got)
	}
}

func TestGetCallerFromContextPresent(t *testing.T) {
	identity := uuid.New()
	caller := authz.Caller{Identity: &identity, IsAPIKey: true}
	ctx := context.WithValue(context.Background(), CallerContextKey, caller)

	got := GetCallerFromContext(ctx)
	if got.Identity == nil || *got.Identity != identity || !got.IsAPIKey {
		t.Errorf("GetCallerFromContext() = %+v, want %+v", got, caller)
	}
}

func TestGetUserFromContextMissing(t *testing.T) {
	if got := GetUserFromContext(context.Background()); got != nil {
		t.Errorf("GetUserFromContext(empty ctx) = %v, want nil", got)
	}
}

func TestGetUserFromContextPresent(t *testing.T) {
	claims := &crypto.Claims{UserID: uuid.New(), Email: "user@example.com"}
	ctx := context.WithValue(context.Background(), UserContextKey, claims)

	got := GetUserFromContext(ctx)
	if got == nil || got.Email != claims.Email {
		t.Errorf("GetUserFromContext() = %+v, want %+v", got, claims)
	}
}
