package request

import (
	"net/http"
)

// RejectFunc writes the response for a request a middleware refused.
// The status is already decided; the writer owns the body shape.
type RejectFunc func(w http.ResponseWriter, r *http.Request, status int)

func writeRejection(body string) RejectFunc {
	return func(w http.ResponseWriter, _ *http.Request, status int) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body)) //nolint:errcheck // headers already sent
	}
}

// BodyLimit returns middleware that limits the size of request bodies.
// Oversized bodies surface as a read error in the handler (413 via http.MaxBytesError).
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return BodyLimitWith(maxBytes, writeRejection(`{"error":"payload_too_large","error_description":"request body exceeds the configured limit"}`))
}

// BodyLimitWith is BodyLimit with a caller-owned 413 response for declared
// oversized bodies. Chunked bodies still fail in the handler's read.
func BodyLimitWith(maxBytes int64, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				reject(w, r, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
