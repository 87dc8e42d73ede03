package web

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookieName = "voicedoc_session"
	sessionIssuer     = "voicedoc"
)

// SessionCookies binds a browser to its conversation session with an
// HS256-signed token carrying the session id as subject.
type SessionCookies struct {
	secret []byte
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionCookies signs with secret. An empty secret gets a random one,
// which invalidates every cookie on restart; sessions do not survive a
// restart anyway.
func NewSessionCookies(secret []byte, maxAge time.Duration, secure bool) (*SessionCookies, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("web: generate session secret: %w", err)
		}
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &SessionCookies{secret: secret, maxAge: maxAge, secure: secure, now: time.Now}, nil
}

// Issue writes a cookie for sessionID.
func (c *SessionCookies) Issue(w http.ResponseWriter, sessionID string) error {
	token, err := c.Sign(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Sign returns the token for sessionID.
func (c *SessionCookies) Sign(sessionID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("web: sign session token: %w", err)
	}
	return token, nil
}

// SessionID returns the verified session id from the request cookie.
func (c *SessionCookies) SessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", err
	}
	return c.Verify(cookie.Value)
}

// Verify checks signature, issuer and expiry and returns the subject.
func (c *SessionCookies) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("web: verify session token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("web: verify session token: empty subject")
	}
	return claims.Subject, nil
}
