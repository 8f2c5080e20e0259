package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/at-ishikawa/wordbroker/internal/requestid"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestMiddleware assigns the request id and logs one line per request
func requestMiddleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = requestid.New()
		}
		w.Header().Set(requestid.Header, id)
		ctx := requestid.NewContext(r.Context(), id)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		slog.Default().InfoContext(ctx, "request handled",
			"service", service,
			"method", r.Method,
			"status", recorder.status,
			"duration", time.Since(start),
		)
	})
}
