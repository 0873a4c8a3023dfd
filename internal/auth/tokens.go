package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/socialnet/backend/internal/models"
)

var (
	// ErrInvalidToken indicates a token failed signature, algorithm or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
)

// UserInfo is the identity embedded in every access token.
type UserInfo struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// AccessClaims is the claim set of a short-lived access token.
type AccessClaims struct {
	UserInfo UserInfo `json:"UserInfo"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set of a refresh token. The registered ID (jti)
// identifies the token for revocation.
type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies access and refresh tokens. The two kinds use
// separate secrets so one can never be presented as the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	now func() time.Time
}

// NewTokenManager constructs a TokenManager that issues tokens with the provided TTLs.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessSecret == "" || refreshSecret == "" {
		panic("auth: token secrets must not be empty")
	}
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RefreshTTL is the lifetime of issued refresh tokens, which the cookie mirrors.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue creates a new access and refresh token pair for the provided user.
func (m *TokenManager) Issue(user models.User) (models.SessionTokens, error) {
	if user.ID == "" || user.Username == "" {
		return models.SessionTokens{}, errors.New("user id and username must be provided")
	}

	accessToken, accessExpiresAt, err := m.IssueAccess(user)
	if err != nil {
		return models.SessionTokens{}, err
	}

	now := m.now()
	refreshExpiresAt := now.Add(m.refreshTTL)
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiresAt),
		},
	})
	refreshToken, err := refresh.SignedString(m.refreshSecret)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// IssueAccess signs an access token carrying the user's current id, username and roles.
func (m *TokenManager) IssueAccess(user models.User) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.accessTTL)

	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		UserInfo: UserInfo{
			UserID:   user.ID,
			Username: user.Username,
			Roles:    roles,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccess validates an access token and returns the principal it carries.
func (m *TokenManager) VerifyAccess(tokenString string) (models.Principal, error) {
	var claims AccessClaims
	if err := m.parse(tokenString, &claims, m.accessSecret); err != nil {
		return models.Principal{}, err
	}
	if strings.TrimSpace(claims.UserInfo.UserID) == "" {
		return models.Principal{}, ErrInvalidToken
	}
	return models.Principal{
		UserID:   claims.UserInfo.UserID,
		Username: claims.UserInfo.Username,
		Roles:    claims.UserInfo.Roles,
	}, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (m *TokenManager) VerifyRefresh(tokenString string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := m.parse(tokenString, &claims, m.refreshSecret); err != nil {
		return RefreshClaims{}, err
	}
	if strings.TrimSpace(claims.Username) == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (m *TokenManager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
