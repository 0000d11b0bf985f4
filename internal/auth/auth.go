// Package auth enforces an optional shared bearer token on the API.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/jyannick/OrbitPlot/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// Validate reports an enabled configuration without a token.
func (c Config) Validate() error {
	if c.Enabled && strings.TrimSpace(c.Token) == "" {
		return errors.New("auth token is required when auth is enabled")
	}
	return nil
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// isExempt returns true for probes and for everything outside /api/, which
// is the embedded page and its assets.
func isExempt(path string) bool {
	return exemptPaths[path] || !strings.HasPrefix(path, "/api/")
}

// token returns the bearer token from the Authorization header, or from the
// access_token query parameter for EventSource clients, which cannot set
// headers.
func token(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		tok, ok := strings.CutPrefix(header, "Bearer ")
		return tok, ok && tok != ""
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok, true
	}
	return "", false
}

// Middleware returns an HTTP middleware that enforces bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tok, ok := token(r)
			if !ok || subtle.ConstantTimeCompare([]byte(tok), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="orbitplot"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
