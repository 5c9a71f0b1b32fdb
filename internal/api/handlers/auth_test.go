package handlers

import (
	"testing"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/bifrostlabs/bifrost/internal/pkg/crypto"
	"github.com/google/uuid"
)

func TestToUserResponseWithOrg(t *testing.T) {
	orgID := uuid.New()
	u := &models.User{
		ID:             uuid.New(),
		Email:          "user@example.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		EmailVerified:  true,
		OrganizationID: &orgID,
		CreatedAt:      time.Unix(1700000000, 0),
	}

	resp := toUserResponse(u)
	if resp.OrgID == nil || *resp.OrgID != orgID.String() {
		t.Errorf("OrgID = %v, want %q", resp.OrgID, orgID.String())
	}
	if resp.Email != u.Email {
		t.Errorf("Email = %q, want %q", resp.Email, u.Email)
	}
	if resp.CreatedAt != 1700000000 {
		t.Errorf("CreatedAt = %d, want 1700000000", resp.CreatedAt)
	}
}

func TestToUserResponseWithoutOrg(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "anon@example.com"}
	resp := toUserResponse(u)
	if resp.OrgID != nil {
		t.Errorf("OrgID = %v, want nil", resp.OrgID)
	}
}

func TestToAuthResponse(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "user@example.com"}
	expires := time.Unix(1700003600, 0)
	result := &services.AuthResult{
		User: u,
		TokenPair: &crypto.TokenPair{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			ExpiresAt:    expires,
		},
	}

	resp := toAuthResponse(result)
	if resp.AccessToken != "access-token" || resp.RefreshToken != "refresh-token" {
		t.Errorf("tokens not carried through: %+v", resp)
	}
	if resp.ExpiresAt != expires.Unix() {
		t.Errorf("ExpiresAt = %d, want %d", resp.ExpiresAt, expires.Unix())
	}
	if resp.User.Email != u.Email {
		t.Errorf("User.Email = %q, want %q", resp.User.Email, u.Email)
	}
}
