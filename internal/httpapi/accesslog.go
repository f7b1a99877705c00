package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/leonardcser/retro-badge/internal/logger"
)

// AccessLog logs one line per request with status, size and duration.
func AccessLog(next http.Handler) http.Handler {
	log := logger.With("access")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host == "" {
			host = r.RemoteAddr
		}
		log.Infow(r.Method+" "+r.URL.Path,
			"remote", host,
			"status", lrw.statusCode,
			"bytes", lrw.size,
			"duration", time.Since(start),
		)
	})
}

// loggingResponseWriter captures the status code and body size.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}
