package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bifrostlabs/bifrost/internal/api/dto"
	"github.com/bifrostlabs/bifrost/internal/api/middleware"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/bifrostlabs/bifrost/internal/pkg/validator"
)

// AuthHandler wraps the end-user session surface (register/login/refresh/
// logout/forgot-reset password), unchanged ambient plumbing around the
// admission gate's caller identity.
type AuthHandler struct {
	authSvc *services.AuthService
}

func NewAuthHandler(authSvc *services.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	result, err := h.authSvc.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailExists) {
			dto.Conflict(w, "email already registered")
			return
		}
		dto.InternalServerError(w, "failed to register user")
		return
	}

	dto.JSON(w, http.StatusCreated, toAuthResponse(result))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	result, err := h.authSvc.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrUserLocked) {
			dto.Unauthorized(w, err.Error())
			return
		}
		dto.InternalServerError(w, "failed to log in")
		return
	}

	dto.JSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	tokenPair, err := h.authSvc.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		dto.Unauthorized(w, "invalid or expired refresh token")
		return
	}

	dto.JSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  tokenPair.AccessToken,
		"refresh_token": tokenPair.RefreshToken,
		"expires_at":    tokenPair.ExpiresAt.Unix(),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		dto.Unauthorized(w, "unauthorized")
		return
	}
	if err := h.authSvc.LogoutAll(r.Context(), claims.UserID); err != nil {
		dto.InternalServerError(w, "failed to log out")
		return
	}
	dto.OK(w, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	// Always respond 200 regardless of whether the email exists, to
	// avoid leaking account existence.
	_ = h.authSvc.InitiatePasswordReset(r.Context(), req.Email)
	dto.OK(w, map[string]string{"status": "reset_email_sent_if_account_exists"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	if err := h.authSvc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidToken) || errors.Is(err, services.ErrTokenExpired) {
			dto.BadRequest(w, err.Error())
			return
		}
		dto.InternalServerError(w, "failed to reset password")
		return
	}

	dto.OK(w, map[string]string{"status": "password_reset"})
}

func toAuthResponse(result *services.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		User:         toUserResponse(result.User),
		AccessToken:  result.TokenPair.AccessToken,
		RefreshToken: result.TokenPair.RefreshToken,
		ExpiresAt:    result.TokenPair.ExpiresAt.Unix(),
	}
}

func toUserResponse(u *models.User) *dto.UserResponse {
	var orgID *string
	if u.OrganizationID != nil {
		s := u.OrganizationID.String()
		orgID = &s
	}
	return &dto.UserResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
		IsSuperuser:   u.IsSuperuser,
		OrgID:         orgID,
		CreatedAt:     u.CreatedAt.Unix(),
	}
}
