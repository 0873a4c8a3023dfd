package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/socialnet/backend/internal/logging"
	"github.com/socialnet/backend/internal/models"
)

// TokenVerifier validates an access token and returns the identity it carries.
type TokenVerifier interface {
	VerifyAccess(token string) (models.Principal, error)
}

type principalKey struct{}

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, principal models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal set by Authenticate.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(models.Principal)
	return principal, ok && principal.UserID != ""
}

// Authenticate rejects requests without a valid bearer access token and
// attaches the token's principal to the request context.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			principal, err := verifier.VerifyAccess(token)
			if err != nil {
				logging.FromContext(r.Context()).Debug("access token rejected", slog.Any("error", err))
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("user_id", principal.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
