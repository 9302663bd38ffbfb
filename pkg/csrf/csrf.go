// Package csrf issues and checks double-submit CSRF tokens. The token is an
// HS256 JWT carrying a nonce that must match the nonce cookie.
package csrf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	FieldName  = "_csrf"
	HeaderName = "X-CSRF-Token"
	cookieName = "_csrf_nonce"
	maxBody    = 1 << 20
)

var ErrInvalidToken = errors.New("invalid_csrf_token")

type claims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

// New builds a manager. secure marks the nonce cookie Secure.
func New(secret string, ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, secure: secure}
}

// Issue returns a token for the form being rendered and makes sure the nonce
// cookie is set.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	nonce := ""
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		nonce = c.Value
	} else {
		nonce = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    nonce,
			Path:     "/",
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return signed, nil
}

// Verify checks token against the nonce cookie of r.
func (m *Manager) Verify(r *http.Request, token string) error {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("%w: missing nonce cookie", ErrInvalidToken)
	}
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidToken)
	}

	var c claims
	_, err = jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Nonce != cookie.Value {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidToken)
	}
	return nil
}

// Protect rejects unsafe requests without a valid token. The token is read
// from the form field or the header; a form body is restored for the handler.
func (m *Manager) Protect(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(HeaderName)
			if token == "" && r.Body != nil {
				raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
				if err != nil {
					onError(w, r, fmt.Errorf("%w: read body: %v", ErrInvalidToken, err))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(raw))
				if values, err := url.ParseQuery(string(raw)); err == nil {
					token = values.Get(FieldName)
				}
			}

			if err := m.Verify(r, token); err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
