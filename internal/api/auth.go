package api

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"fjacquet/networth-sync/internal/logging"
)

type contextKey string

const userIDKey contextKey = "userID"

// TokenVerifier checks ID tokens; *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthMiddleware rejects requests without a valid Firebase ID token before
// any handler runs.
type AuthMiddleware struct {
	verifier TokenVerifier
	allowed  map[string]bool
	logger   logging.Logger
}

// NewAuthMiddleware creates the middleware. An empty allowedUIDs list
// accepts every verified user.
func NewAuthMiddleware(verifier TokenVerifier, allowedUIDs []string, logger logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	allowed := make(map[string]bool, len(allowedUIDs))
	for _, uid := range allowedUIDs {
		if uid = strings.TrimSpace(uid); uid != "" {
			allowed[uid] = true
		}
	}
	return &AuthMiddleware{verifier: verifier, allowed: allowed, logger: logger}
}

// RequireAuth validates the bearer token and stores the user id in the
// request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "Missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "Invalid authorization header format"})
			return
		}

		token, err := m.verifier.VerifyIDToken(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.WithError(err).Warn("Rejected ID token")
			writeJSON(w, http.StatusUnauthorized, Response{Message: "Invalid token"})
			return
		}

		if len(m.allowed) > 0 && !m.allowed[token.UID] {
			m.logger.WithField("uid", token.UID).Warn("User not in allowed list")
			writeJSON(w, http.StatusForbidden, Response{Message: "User not allowed"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, token.UID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id from the context.
func UserID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok
}
