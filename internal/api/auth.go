package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type ctxKey int

const ownerKey ctxKey = iota

// BearerAuth resolves the request owner from a static token table. Lookups
// compare every entry so timing does not reveal which tokens exist.
func BearerAuth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, codeAuth, "invalid or missing bearer token")
				return
			}
			presented := []byte(auth[len(prefix):])

			var owner string
			for token, ownerID := range tokens {
				if subtle.ConstantTimeCompare(presented, []byte(token)) == 1 {
					owner = ownerID
				}
			}
			if owner == "" {
				httpError(w, http.StatusUnauthorized, codeAuth, "invalid or missing bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
		})
	}
}

// ownerID returns the authenticated owner set by BearerAuth.
func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}
