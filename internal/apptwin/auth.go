package apptwin

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

// SessionCookieName is the cookie the twin issues on login.
const SessionCookieName = "session"

var (
	errEmptySession   = errors.New("empty session value")
	errSessionFormat  = errors.New("invalid session format")
	errSessionSig     = errors.New("invalid session signature")
	errSessionExpired = errors.New("session expired")
)

// Argon2Params defines parameters for Argon2id password hashing.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params is deliberately light: the twin hashes a password for
// every registration a test run makes.
var DefaultArgon2Params = Argon2Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLen:     16,
	KeyLen:      32,
}

// HashPassword creates an Argon2id hash encoded as
// argon2id$iterations$memory$parallelism$salt$hash.
func HashPassword(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("op=apptwin.HashPassword: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an encoded hash from HashPassword.
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || par == 0 || par > math.MaxUint8 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	actual := argon2.IDKey([]byte(password), salt, iters, mem, uint8(par), uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// SessionData is the decoded content of a valid session cookie.
type SessionData struct {
	Username  string
	LoginTime time.Time
	ExpiresAt time.Time
}

// SessionManager issues and validates HMAC-signed session cookies.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a manager signing with secret.
func NewSessionManager(secret string) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: 24 * time.Hour, now: time.Now}
}

// CreateSession returns a cookie value of the form payload.signature where
// payload is base64url(username):loginUnix:expiresUnix.
func (sm *SessionManager) CreateSession(username string) string {
	now := sm.now()
	payload := fmt.Sprintf("%s:%d:%d",
		base64.RawURLEncoding.EncodeToString([]byte(username)),
		now.Unix(),
		now.Add(sm.ttl).Unix(),
	)
	return payload + "." + sm.sign(payload)
}

// ValidateSession verifies the signature and expiry of a cookie value.
func (sm *SessionManager) ValidateSession(value string) (*SessionData, error) {
	if value == "" {
		return nil, errEmptySession
	}
	payload, sig, ok := strings.Cut(value, ".")
	if !ok || strings.Contains(sig, ".") {
		return nil, errSessionFormat
	}
	if !hmac.Equal([]byte(sm.sign(payload)), []byte(sig)) {
		return nil, errSessionSig
	}
	fields := strings.Split(payload, ":")
	if len(fields) != 3 {
		return nil, errSessionFormat
	}
	user, err := base64.RawURLEncoding.DecodeString(fields[0])
	if err != nil {
		return nil, errSessionFormat
	}
	login, err1 := strconv.ParseInt(fields[1], 10, 64)
	expires, err2 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, errSessionFormat
	}
	data := &SessionData{
		Username:  string(user),
		LoginTime: time.Unix(login, 0),
		ExpiresAt: time.Unix(expires, 0),
	}
	if sm.now().After(data.ExpiresAt) {
		return nil, errSessionExpired
	}
	return data, nil
}

func (sm *SessionManager) sign(payload string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SetSessionCookie sets the session cookie on the response.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

type sessionKey struct{}

// CurrentUser returns the authenticated username stored by AuthRequired.
func CurrentUser(ctx context.Context) (string, bool) {
	sd, ok := ctx.Value(sessionKey{}).(*SessionData)
	if !ok || sd == nil {
		return "", false
	}
	return sd.Username, true
}

// AuthRequired redirects to /login with 302 unless the request carries a
// valid session cookie.
func (sm *SessionManager) AuthRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		sd, err := sm.ValidateSession(cookie.Value)
		if err != nil {
			LoggerFrom(r).Debug("session rejected", "error", err)
			sm.ClearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sd)))
	})
}

func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(x), nil
}
