package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/nodeflow/logger"
)

// probePaths are not logged.
var probePaths = map[string]bool{
	"/health": true,
	"/ready":  true,
	"/alive":  true,
}

// RequestLogger logs method, path, status and duration of every request
// except health probes. 5xx log at error, 4xx at warn, the rest at debug.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			if id := r.Header.Get(RequestIDHeader); id != "" {
				fields["request_id"] = id
			}
			if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				fields["stream"] = true
			}

			switch {
			case sw.status >= 500:
				log.Error("request completed", fields)
			case sw.status >= 400:
				log.Warn("request completed", fields)
			default:
				log.Debug("request completed", fields)
			}
		})
	}
}

// statusWriter captures the status code. It forwards Flush and Unwrap so
// SSE streaming keeps working behind it.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
