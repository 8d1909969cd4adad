package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const CookieName = "insights_session"

var errInvalidCookie = errors.New("invalid session cookie")

type contextKey struct{}

// Manager ties the store to signed browser cookies.
type Manager struct {
	store     *Store
	secretKey []byte
	secure    bool
}

func NewManager(store *Store, secretKey string, secure bool) *Manager {
	return &Manager{store: store, secretKey: []byte(secretKey), secure: secure}
}

func (m *Manager) Store() *Store {
	return m.store
}

// Load returns the session named by the request cookie, if it is still live.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}

	token, err := m.verify(cookie.Value)
	if err != nil {
		return nil, err
	}
	sess, ok := m.store.Get(token)
	if !ok {
		return nil, nil
	}
	return sess, nil
}

// Issue creates a new session and sets its cookie.
func (m *Manager) Issue(w http.ResponseWriter) (*Session, error) {
	sess, err := m.store.Create()
	if err != nil {
		return nil, err
	}
	m.setCookie(w, sess)
	return sess, nil
}

// Refresh re-sends the cookie for a session that was just used so the
// browser keeps it as long as the store does.
func (m *Manager) Refresh(w http.ResponseWriter, sess *Session) {
	m.setCookie(w, sess)
}

func (m *Manager) setCookie(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID + "." + m.sign(sess.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.store.TTL().Seconds()),
	})
}

// Clear ends the request's session and expires its cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) {
	if sess := FromContext(r.Context()); sess != nil {
		m.store.Delete(sess.ID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (m *Manager) sign(token string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	_, _ = mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(value string) (string, error) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return "", errInvalidCookie
	}
	if !hmac.Equal([]byte(parts[1]), []byte(m.sign(parts[0]))) {
		return "", errInvalidCookie
	}
	return parts[0], nil
}

func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}
