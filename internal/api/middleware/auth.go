package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware handles bearer-token verification for authenticated
// endpoints.
type AuthMiddleware struct {
	db     store.DataStore
	secret []byte
	ttl    time.Duration
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(db store.DataStore, secret string, ttl time.Duration) *AuthMiddleware {
	return &AuthMiddleware{db: db, secret: []byte(secret), ttl: ttl}
}

// IssueToken creates a signed JWT for the user.
func (m *AuthMiddleware) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Authenticate resolves a raw token to its user, or nil if the token is
// invalid, expired, or the user no longer exists.
func (m *AuthMiddleware) Authenticate(ctx context.Context, tokenStr string) *models.User {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}

	user, err := m.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil
	}
	return user
}

// RequireAuth middleware verifies bearer tokens on requests. The token may
// arrive in the Authorization header or, for WebSocket upgrades, in the
// "token" query parameter.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			tokenStr = r.URL.Query().Get("token")
		}
		if tokenStr == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user := m.Authenticate(r.Context(), tokenStr)
		if user == nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request
// context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
