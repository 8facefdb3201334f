package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Hijack forwards connection takeover to the underlying writer. Without it
// the wrapper hides http.Hijacker and WebSocket upgrades fail.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/conversations/") && len(path) > len("/conversations/") {
		rest := path[len("/conversations/"):]
		switch {
		case strings.HasSuffix(rest, "/read"):
			return "/conversations/:id/read"
		case strings.Contains(rest, "/messages/"):
			return "/conversations/:id/messages/:msgID"
		case strings.HasSuffix(rest, "/messages"):
			return "/conversations/:id/messages"
		default:
			return "/conversations/:id"
		}
	}
	if strings.HasPrefix(path, "/users/") && len(path) > len("/users/") {
		return "/users/:username"
	}
	return path
}
