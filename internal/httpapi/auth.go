package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"vlmd/internal/config"
)

// APIKeyAuth gates a route group behind the configured API key. The header
// name and value prefix are configurable; the prefix match is
// case-insensitive. With no key configured the middleware is a pass-through.
// Rejections never echo the presented credential anywhere unredacted.
func APIKeyAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.AuthEnabled() {
			return next
		}
		key := []byte(cfg.APIKey)
		header := cfg.APIKeyHeader
		if header == "" {
			header = "Authorization"
		}
		prefix := cfg.APIKeyPrefix
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				logger().Warn().Str("remote", r.RemoteAddr).Str("header", header).Msg("auth header missing")
				writeAuthError(w, prefix)
				return
			}
			presented := raw
			if prefix != "" {
				// The scheme must be followed by a space: "Bearer <key>".
				if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) || raw[len(prefix)] != ' ' {
					logger().Warn().Str("remote", r.RemoteAddr).Msg("auth scheme mismatch")
					writeAuthError(w, prefix)
					return
				}
				presented = strings.TrimSpace(raw[len(prefix):])
			}
			if subtle.ConstantTimeCompare([]byte(presented), key) != 1 {
				logger().Warn().Str("remote", r.RemoteAddr).Str("key", redactKey(presented)).Msg("api key rejected")
				writeAuthError(w, prefix)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, prefix string) {
	scheme := strings.TrimSpace(prefix)
	if scheme == "" {
		scheme = "Bearer"
	}
	w.Header().Set("WWW-Authenticate", scheme)
	writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key", errTypeAuth)
}

// redactKey keeps just enough of a credential to correlate log lines.
func redactKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return k[:2] + "***" + k[len(k)-2:]
}
