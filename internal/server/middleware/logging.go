package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Logger returns an HTTP middleware that writes a structured access log line
// per request: method, path, status, size, duration, request ID, and remote
// address. When the request authenticated further down the chain, the line
// also carries the principal's user and credential type, so token and API
// key activity can be traced per identity.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}

			slot := &principalSlot{}
			r = r.WithContext(context.WithValue(r.Context(), principalSlotKey, slot))

			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.status >= 500 {
				level = slog.LevelError
			} else if ww.status >= 400 {
				level = slog.LevelWarn
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if slot.p != nil {
				args = append(args, "user", slot.p.User, "auth", slot.p.Type)
			}
			logger.Log(r.Context(), level, "request", args...)
		})
	}
}

// wrapWriter captures the status code and bytes written for the access log.
type wrapWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *wrapWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *wrapWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying ResponseWriter so interface assertions like
// http.Flusher keep working through the chain.
func (w *wrapWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
