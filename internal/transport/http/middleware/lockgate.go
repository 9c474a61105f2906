package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-futureme/internal/application/applock"
	"github.com/go-futureme/internal/domain"
	jwtinfra "github.com/go-futureme/internal/infrastructure/jwt"
)

type contextKey string

const claimsKey contextKey = "claims"

// LockStatus is the part of the session lock the gate reads.
type LockStatus interface {
	Status() applock.Status
}

// Gate withholds letter content while the session lock is pending
// re-authentication. With the lock enabled every request must also carry a
// Bearer grant issued in the current lock epoch.
func Gate(lock LockStatus, grants *jwtinfra.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := lock.Status()
			if st.State == domain.PendingReauth {
				writeJSONError(w, http.StatusLocked, "session locked")
				return
			}
			if !st.Enabled || grants == nil {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := grants.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired grant")
				return
			}
			if claims.Epoch != st.Epoch {
				writeJSONError(w, http.StatusUnauthorized, "grant issued before the last lock")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts the verified grant, if the gate required one.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}
