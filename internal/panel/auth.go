package panel

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionCookieName is the browser-side cookie holding the signed panel
// session token, set once a panel passphrase is configured (spec §6's panel
// stays loopback-only; this cookie distinguishes an authenticated browser
// tab from an unauthenticated one, per SPEC_FULL §10).
const sessionCookieName = "sentineld_panel_session"

var errPanelAuthDisabled = errors.New("panel passphrase not configured")

// panelClaims is the minimal claim set for the panel's local session cookie.
type panelClaims struct {
	jwt.RegisteredClaims
}

// Auth signs and verifies the panel's session cookie, grounded on the
// teacher's internal/auth.JWTService.
type Auth struct {
	Passphrase string
	secret     []byte
	Expiry     time.Duration
	Clock      func() time.Time
}

// NewAuth builds an Auth from a configured passphrase. A blank passphrase
// means the panel stays unauthenticated, matching its historical default.
func NewAuth(passphrase string) *Auth {
	return &Auth{Passphrase: passphrase, secret: []byte(passphrase), Expiry: 24 * time.Hour, Clock: time.Now}
}

func (a *Auth) enabled() bool {
	return a != nil && a.Passphrase != ""
}

func (a *Auth) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// issue signs a fresh session token.
func (a *Auth) issue() (string, error) {
	if !a.enabled() {
		return "", errPanelAuthDisabled
	}
	claims := panelClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "panel",
		IssuedAt:  jwt.NewNumericDate(a.now()),
		ExpiresAt: jwt.NewNumericDate(a.now().Add(a.Expiry)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// verify checks a cookie value's signature and expiry.
func (a *Auth) verify(raw string) error {
	if !a.enabled() {
		return errPanelAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(raw, &panelClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return errors.New("invalid or expired session")
	}
	return nil
}

// handleLogin implements POST /api/login: exchanges the configured
// passphrase for a signed session cookie.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.Auth.enabled() {
		writeError(w, http.StatusNotImplemented, "panel passphrase not configured")
		return
	}
	var body struct {
		Passphrase string `json:"passphrase"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Passphrase != h.Auth.Passphrase {
		writeError(w, http.StatusUnauthorized, "invalid passphrase")
		return
	}
	token, err := h.Auth.issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name: sessionCookieName, Value: token, Path: "/", HttpOnly: true, SameSite: http.SameSiteStrictMode,
		Expires: h.Auth.now().Add(h.Auth.Expiry),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth wraps mux so every route but /api/login and /metrics requires
// a valid session cookie once a panel passphrase is configured. A nil or
// disabled Auth leaves the panel open, matching its historical default.
func requireAuth(mux http.Handler, auth *Auth) http.Handler {
	if !auth.enabled() {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/login" || r.URL.Path == "/metrics" {
			mux.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || auth.verify(cookie.Value) != nil {
			writeError(w, http.StatusUnauthorized, "panel authentication required")
			return
		}
		mux.ServeHTTP(w, r)
	})
}
