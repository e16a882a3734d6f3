package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ebttikar/oip-assistant/internal/logging"
)

// authMiddleware enforces Bearer token authentication when an API key is
// configured. With no key set every request passes (development mode).
// The token value itself is never logged.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="oipa"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIKey)) != 1 {
			logging.FromContext(r.Context()).Warn("auth rejected",
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="oipa", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
