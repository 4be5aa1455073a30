// Package session issues the signed staff session cookie and the CSRF token
// bound to it. State is carried in the cookie and the request context; there
// are no process-wide session globals.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const cookieName = "session"

type ctxKey struct{}

// Manager signs and verifies session cookies with an HMAC-SHA256 secret.
type Manager struct {
	Secret string
}

func NewManager(secret string) *Manager {
	if secret == "" {
		secret = "devsessionsecret"
	}
	return &Manager{Secret: secret}
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(m.Secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Create issues a fresh session id, sets the signed cookie and returns the id.
func (m *Manager) Create(w http.ResponseWriter) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	sid := base64.RawURLEncoding.EncodeToString(raw)
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sid + "." + m.sign(sid),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(14 * 24 * time.Hour),
	})
	return sid, nil
}

// Clear deletes the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/",
		Expires: time.Unix(0, 0), HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// Parse validates the cookie signature and returns the session id.
func (m *Manager) Parse(r *http.Request) (string, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	parts := strings.Split(c.Value, ".")
	if len(parts) != 2 {
		return "", false
	}
	sid, sig := parts[0], parts[1]
	if !hmac.Equal([]byte(sig), []byte(m.sign(sid))) {
		return "", false
	}
	return sid, true
}

// CSRFToken derives the anti-forgery token for a session. Deriving instead of
// storing keeps the server stateless: the token is valid exactly as long as
// the session cookie it is bound to.
func (m *Manager) CSRFToken(sid string) string {
	return m.sign("csrf:" + sid)
}

// VerifyCSRF checks the submitted token against the request's session in
// constant time. A request without a valid session always fails.
func (m *Manager) VerifyCSRF(r *http.Request, token string) bool {
	sid, ok := m.Parse(r)
	if !ok || token == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(m.CSRFToken(sid)))
}

// WithSession stores the session id in the context.
func WithSession(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sid)
}

// FromContext extracts the session id placed by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(ctxKey{}).(string)
	return sid, ok && sid != ""
}

// Middleware attaches the parsed session id to the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid, ok := m.Parse(r); ok {
			r = r.WithContext(WithSession(r.Context(), sid))
		}
		next.ServeHTTP(w, r)
	})
}
