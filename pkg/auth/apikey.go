// Package auth provides the HTTP middleware surface: pre-shared-key
// authentication, CORS, and request-ID propagation.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/actionledger/core/pkg/api"
)

// publicPaths are endpoints reachable without authentication.
var publicPaths = []string{
	"/",
	"/health",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// APIKeyMiddleware authenticates requests via the X-API-Key header against a
// single pre-shared key. Missing or mismatched keys fail closed with 401.
// The comparison is constant-time.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				api.WriteUnauthorized(w, "Missing X-API-Key header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				api.WriteUnauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
