package crypto

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testManager() *JWTManager {
	return NewJWTManager(JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
		Issuer:        "bifrost-test",
	})
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	m := testManager()
	userID := uuid.New()

	pair, err := m.GenerateTokenPair(userID, "user@example.com", nil)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	claims, err := m.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %v, want %v", claims.UserID, userID)
	}
	if claims.Type != "access" {
		t.Errorf("Type = %q, want access", claims.Type)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := testManager()
	pair, _ := m.GenerateTokenPair(uuid.New(), "user@example.com", nil)

	other := NewJWTManager(JWTConfig{Secret: "different-secret", AccessExpiry: time.Minute})
	if _, err := other.ValidateToken(pair.AccessToken); err != ErrInvalidToken {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenDetectsExpiry(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "test-secret", AccessExpiry: -time.Minute})
	pair, err := m.GenerateTokenPair(uuid.New(), "user@example.com", nil)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	if _, err := m.ValidateToken(pair.AccessToken); err != ErrExpiredToken {
		t.Errorf("ValidateToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestRefreshTokensRejectsAccessToken(t *testing.T) {
	m := testManager()
	pair, _ := m.GenerateTokenPair(uuid.New(), "user@example.com", nil)

	if _, err := m.RefreshTokens(pair.AccessToken); err != ErrInvalidToken {
		t.Errorf("RefreshTokens(access token) error = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshTokensIssuesNewPair(t *testing.T) {
	m := testManager()
	userID := uuid.New()
	pair, _ := m.GenerateTokenPair(userID, "user@example.com", nil)

	refreshed, err := m.RefreshTokens(pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens() error = %v", err)
	}
	claims, err := m.ValidateToken(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken(refreshed) error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %v, want %v", claims.UserID, userID)
	}
}

func TestGenerateTokenPairCarriesOrgID(t *testing.T) {
	m := testManager()
	orgID := uuid.New()

	pair, err := m.GenerateTokenPair(uuid.New(), "user@example.com", &orgID)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	claims, err := m.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.OrgID == nil || *claims.OrgID != orgID {
		t.Errorf("OrgID = %v, want %v", claims.OrgID, orgID)
	}
}
