package http

import (
	"log"
	"net/http"
	"time"
)

// RequestLogger logs request details and latency. Payment routes also carry
// the reference, so one attempt can be traced across initiation, polling
// and webhook activity in a single log stream.
func RequestLogger(next http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		reference := ""
		if ref, _, ok := parsePaymentPath(r.URL.Path); ok && ref != "callback" {
			reference = " reference=" + ref
		}
		logger.Printf(
			"request method=%s path=%s status=%d duration=%s%s",
			r.Method,
			r.URL.Path,
			rec.status,
			time.Since(start),
			reference,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
