package server

import (
	"net/http"
)

// corsMiddleware echoes the caller's origin so credentialed requests work, answers
// preflight requests and rejects every method other than POST.
// The headers are set before next runs so that error responses carry them too.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Add("Vary", "Origin")
		} else {
			header.Set("Access-Control-Allow-Origin", "*")
		}
		header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type")
		header.Set("Access-Control-Max-Age", "86400")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			next.ServeHTTP(w, r)
		default:
			writeJSON(r.Context(), w, http.StatusMethodNotAllowed, ErrorResponse{
				Error: "Method not allowed: " + r.Method,
			})
		}
	})
}
