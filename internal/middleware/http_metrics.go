package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// studioActions are the fixed trailing segments under /studio/sessions/{id}.
var studioActions = map[string]bool{
	"participants": true,
	"master":       true,
	"gesture":      true,
	"live":         true,
	"end":          true,
	"token":        true,
	"members":      true,
}

// normalizePath converts paths with dynamic segments to route patterns to prevent
// cardinality explosion in metrics. This maps paths like /studio/sessions/b1/live
// to /studio/sessions/{id}/live.
func normalizePath(path string) string {
	// Exact matches for static routes (no normalization needed)
	staticRoutes := map[string]bool{
		"/":                true,
		"/studio/sessions": true,
		"/feed":            true,
		"/broadcasts/live": true,
		"/player":          true,
		"/health":          true,
		"/health/ready":    true,
		"/metrics":         true,
	}

	if staticRoutes[path] {
		return path
	}

	if strings.HasPrefix(path, "/broadcasts/") && strings.HasSuffix(path, "/chat") {
		// /broadcasts/{id}/chat
		if parts := strings.Split(path, "/"); len(parts) == 4 && parts[2] != "" {
			return "/broadcasts/{id}/chat"
		}
	}

	if !strings.HasPrefix(path, "/studio/sessions/") {
		// Fallback: return as-is for unknown patterns
		return path
	}

	// parts: "", "studio", "sessions", id, ...
	parts := strings.Split(path, "/")
	if len(parts) < 4 || parts[3] == "" {
		return path
	}

	switch len(parts) {
	case 4:
		// /studio/sessions/{id}
		return "/studio/sessions/{id}"
	case 5:
		// /studio/sessions/{id}/live, /end, /token, ...
		if studioActions[parts[4]] {
			return "/studio/sessions/{id}/" + parts[4]
		}
	case 6:
		// /studio/sessions/{id}/participants/{pid}
		if parts[4] == "participants" {
			return "/studio/sessions/{id}/participants/{pid}"
		}
	case 7:
		// /studio/sessions/{id}/participants/{pid}/connection
		if parts[4] == "participants" && parts[6] == "connection" {
			return "/studio/sessions/{id}/participants/{pid}/connection"
		}
		// /studio/sessions/{id}/channels/{pid}/volume or mute
		if parts[4] == "channels" && (parts[6] == "volume" || parts[6] == "mute") {
			return "/studio/sessions/{id}/channels/{pid}/" + parts[6]
		}
	}

	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check endpoints (/health, /health/ready) are excluded from metrics to avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exclude health check endpoints from metrics
			if r.URL.Path == "/health" || r.URL.Path == "/health/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			// Wrap response writer to capture status and size
			mrw := newMetricsResponseWriter(w)

			// Get request size from Content-Length header
			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			// Call the next handler
			next.ServeHTTP(mrw, r)

			// Calculate duration in seconds
			duration := time.Since(start).Seconds()

			// Normalize path to prevent cardinality explosion
			normalizedPath := normalizePath(r.URL.Path)

			// Record metrics
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
