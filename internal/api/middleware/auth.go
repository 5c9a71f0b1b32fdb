package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/bifrostlabs/bifrost/internal/api/dto"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/pkg/crypto"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
)

type contextKey string

const (
	UserContextKey   contextKey = "user"
	CallerContextKey contextKey = "caller"
)

// AuthMiddleware authenticates either a bearer JWT (end-user session) or
// an `X-API-Key` header (the is_api_key caller §4.7 grants unconditional
// execute access), resolving either into the authz.Caller contract the
// admission gate and the authorization resolver share.
type AuthMiddleware struct {
	jwtManager  *crypto.JWTManager
	redisClient *pkgredis.Client
	apiKeys     *repositories.APIKeyRepository
}

func NewAuthMiddleware(jwtManager *crypto.JWTManager, redisClient *pkgredis.Client, apiKeys *repositories.APIKeyRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:  jwtManager,
		redisClient: redisClient,
		apiKeys:     apiKeys,
	}
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			caller, err := m.authenticateAPIKey(r.Context(), apiKey)
			if err != nil {
				dto.ErrorResponse(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			dto.ErrorResponse(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			dto.ErrorResponse(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		token := parts[1]
		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			if err == crypto.ErrExpiredToken {
				dto.ErrorResponse(w, http.StatusUnauthorized, "token expired")
				return
			}
			dto.ErrorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Type != "access" {
			dto.ErrorResponse(w, http.StatusUnauthorized, "invalid token type")
			return
		}

		if claims.ID != "" {
			blacklisted, err := m.redisClient.IsTokenBlacklisted(r.Context(), claims.ID)
			if err == nil && blacklisted {
				dto.ErrorResponse(w, http.StatusUnauthorized, "token has been revoked")
				return
			}
		}
		logoutTime, err := m.redisClient.GetUserLogoutTime(r.Context(), claims.UserID.String())
		if err == nil && logoutTime > 0 && claims.IssuedAt != nil {
			if logoutTime > claims.IssuedAt.Unix() {
				dto.ErrorResponse(w, http.StatusUnauthorized, "token has been revoked")
				return
			}
		}

		caller := authz.Caller{Identity: &claims.UserID, OrgID: claims.OrgID}
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		ctx = context.WithValue(ctx, CallerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticateAPIKey(ctx context.Context, rawKey string) (authz.Caller, error) {
	row, err := m.apiKeys.FindByKeyHash(ctx, hashAPIKey(rawKey))
	if err != nil {
		return authz.Caller{}, err
	}
	_ = m.apiKeys.UpdateLastUsed(ctx, row.ID)
	return authz.Caller{Identity: row.UserID, OrgID: row.OrganizationID, IsAPIKey: true}, nil
}

func GetUserFromContext(ctx context.Context) *crypto.Claims {
	claims, ok := ctx.Value(UserContextKey).(*crypto.Claims)
	if !ok {
		return nil
	}
	return claims
}

func GetCallerFromContext(ctx context.Context) authz.Caller {
	caller, ok := ctx.Value(CallerContextKey).(authz.Caller)
	if !ok {
		return authz.Caller{}
	}
	return caller
}
