package middleware

import (
	"net/http"
)

// DefaultMaxBodySize is 1MB, enough for any non-ingest endpoint.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize limits the size of incoming request bodies by wrapping them
// with http.MaxBytesReader. Reads past the limit fail and surface as a
// decode error in the handler. The ingest route gets its own, much larger
// cap from config; players submit batches that can run to megabytes.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}
