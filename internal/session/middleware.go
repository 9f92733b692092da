package session

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// NewContext returns a context carrying s, the way Middleware attaches
// it to requests.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached to the request context by
// Middleware. The second return value is false for requests that did not
// pass through it.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}

// Middleware resolves the request's session from the cookie and attaches
// it to the request context. Sessions are minted only for API requests:
// health probes and static asset fetches without a cookie pass through
// sessionless, so pollers cannot grow the session table.
func Middleware(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(CookieName); err == nil {
				id = c.Value
			}

			sess, ok := m.Get(id)
			if !ok {
				if !needsSession(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
				sess = m.Create()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    sess.ID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			sess.Touch()
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sess)))
		})
	}
}

// needsSession reports whether a cookie-less request on path warrants a
// fresh session. Everything under the API does; /health and the UI
// assets do not.
func needsSession(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
