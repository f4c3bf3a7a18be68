package middleware

import (
	"context"
	"net/http"

	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/domain"
)

type contextKey string

const userKey contextKey = "user"

// Session returns middleware that resolves the bearer token to a user and
// injects it into the request context. The token is read from the named
// header first, then the cookie. An unresolvable token leaves the request
// anonymous rather than failing it; the guards below decide per route.
func Session(svc session.Service, headerName, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := svc.Validate(r.Context(), TokenFromRequest(r, headerName, cookieName))
			if err != nil {
				writeJSONError(w, domain.KindOf(err).Status(), domain.KindOf(err).ClientKey())
				return
			}
			if user != nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenFromRequest extracts the presented bearer token, preferring the
// header over the cookie. Returns "" when neither is present.
func TokenFromRequest(r *http.Request, headerName, cookieName string) string {
	if v := r.Header.Get(headerName); v != "" {
		return v
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// UserFromContext extracts the logged-in user from the request context.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok
}

// RequireLogin rejects anonymous requests.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, domain.KindUnauthorized.ClientKey())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireVerified rejects anonymous requests and logged-in users whose
// phone number has never been confirmed.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, domain.KindUnauthorized.ClientKey())
			return
		}
		if !u.IsVerified() {
			writeJSONError(w, http.StatusUnauthorized, domain.KindUnverified.ClientKey())
			return
		}
		next.ServeHTTP(w, r)
	})
}
