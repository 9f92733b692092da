package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForSSE routes event-stream requests around compress,
// which buffers output and starves the client of flushed events. The
// live log stream is the one SSE endpoint, matched by path as a fallback
// for clients that omit the Accept header.
func SkipCompressionForSSE(compress func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
				strings.HasSuffix(r.URL.Path, "/logs/stream") {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
