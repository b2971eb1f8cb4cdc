package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrAuthDisabled = errors.New("token auth disabled")
)

const tokenIssuer = "tcross-assistant"

type ChatClaims struct {
	jwt.RegisteredClaims
}

// AuthManager mints and checks the bearer tokens that give an API client a
// stable identity. With an empty secret tokens are disabled and clients are
// identified by address only.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *AuthManager) Enabled() bool { return len(a.secret) > 0 }

// Mint issues a token for a fresh random subject.
func (a *AuthManager) Mint() (token, subject string, expires time.Time, err error) {
	if !a.Enabled() {
		return "", "", time.Time{}, ErrAuthDisabled
	}
	now := a.now()
	subject = uuid.NewString()
	expires = now.Add(a.ttl)
	claims := ChatClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, subject, expires, nil
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *AuthManager) ParseFromRequest(r *http.Request) (*ChatClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, ErrMissingToken
	}
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, ErrInvalidToken
	}
	if !a.Enabled() {
		return nil, ErrAuthDisabled
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*ChatClaims, error) {
	claims := &ChatClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
