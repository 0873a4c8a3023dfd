package handlers

import (
	"net/http"
	"time"

	"github.com/socialnet/backend/internal/logging"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "jwt"

const defaultRefreshTTL = 7 * 24 * time.Hour

// AuthHandler implements the session endpoints.
type AuthHandler struct {
	Auth         AuthService
	CookieSecure bool
	RefreshTTL   time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Login handles POST /auth. The refresh token is only ever sent as a cookie.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Auth == nil {
		logging.FromContext(ctx).Error("authentication service unavailable")
		respondMessage(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	tokens, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(tokens.RefreshToken, int(h.refreshTTL().Seconds())))
	respondJSON(ctx, w, http.StatusOK, accessTokenResponse{AccessToken: tokens.AccessToken})
}

// Refresh handles GET /auth/refresh.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Auth == nil {
		logging.FromContext(ctx).Error("authentication service unavailable")
		respondMessage(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	tokens, err := h.Auth.Refresh(ctx, refreshToken(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, accessTokenResponse{AccessToken: tokens.AccessToken})
}

// Logout handles POST /auth/logout. Without a cookie there is nothing to end
// and the response is 204.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := refreshToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	http.SetCookie(w, h.refreshCookie("", -1))

	if h.Auth != nil {
		if _, err := h.Auth.Logout(ctx, token); err != nil {
			respondError(ctx, w, err)
			return
		}
	}

	respondMessage(ctx, w, http.StatusOK, "Cookie cleared")
}

func (h AuthHandler) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	}
}

func (h AuthHandler) refreshTTL() time.Duration {
	if h.RefreshTTL > 0 {
		return h.RefreshTTL
	}
	return defaultRefreshTTL
}

func refreshToken(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
