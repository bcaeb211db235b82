package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/harvestlab/harvest/internal/config"
)

// NewMiddleware builds the authentication wrapper for the API surface.
// The caller names the paths that bypass authentication (health probes);
// rejections use the same JSON error envelope as the API handlers.
func NewMiddleware(settings config.AuthSettings, exempt ...string) (func(http.Handler) http.Handler, error) {
	exemptSet := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		exemptSet[p] = true
	}

	var authorized func(r *http.Request) bool
	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		authorized = basicAuthorized(settings.Basic)
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		authorized = apiKeyAuthorized(settings.APIKeys)
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}

	challenge := settings.Type == config.AuthTypeBasic
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptSet[r.URL.Path] || authorized(r) {
				next.ServeHTTP(w, r)
				return
			}
			if challenge {
				w.Header().Set("WWW-Authenticate", `Basic realm="harvest"`)
			}
			writeUnauthorized(w)
		})
	}, nil
}

func basicAuthorized(settings config.BasicAuthSettings) func(*http.Request) bool {
	return func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(settings.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(settings.Password)) == 1
		return ok && userMatch && passMatch
	}
}

func apiKeyAuthorized(apiKeys []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			return false
		}
		for _, validKey := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
				return true
			}
		}
		return false
	}
}

// writeUnauthorized matches the shape writeError gives every other API
// failure, so clients parse one envelope.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
