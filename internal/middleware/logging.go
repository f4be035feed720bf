// Package middleware provides HTTP middleware components for the studio server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// broadcastIDKey is the context key for the broadcast a request targets.
type broadcastIDKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// annotationsKey is the context key for the per-request annotations holder.
type annotationsKey struct{}

// annotations lets handlers report fields back to the Logging middleware,
// which only sees the request context it created.
type annotations struct {
	mu          sync.Mutex
	broadcastID string
	errorCode   string
}

func annotationsFrom(ctx context.Context) *annotations {
	a, _ := ctx.Value(annotationsKey{}).(*annotations)
	return a
}

// SetBroadcastID stores the target broadcast id in the context.
// Handlers call this once they have resolved the session.
func SetBroadcastID(ctx context.Context, id string) context.Context {
	if a := annotationsFrom(ctx); a != nil {
		a.mu.Lock()
		a.broadcastID = id
		a.mu.Unlock()
	}
	return context.WithValue(ctx, broadcastIDKey{}, id)
}

// GetBroadcastID retrieves the broadcast id from context. Returns empty string if not present.
func GetBroadcastID(ctx context.Context) string {
	if id, ok := ctx.Value(broadcastIDKey{}).(string); ok {
		return id
	}
	if a := annotationsFrom(ctx); a != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.broadcastID
	}
	return ""
}

// SetErrorCode stores an error code in the context.
// This should be called by handlers when returning error responses.
func SetErrorCode(ctx context.Context, code string) context.Context {
	if a := annotationsFrom(ctx); a != nil {
		a.mu.Lock()
		a.errorCode = code
		a.mu.Unlock()
	}
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	if a := annotationsFrom(ctx); a != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.errorCode
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
// Only the first call sets the status code; subsequent calls are ignored
// to match http.ResponseWriter behavior where only the first status is sent.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// newResponseWriter creates a new responseWriter with default 200 status.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger creates an slog.Logger based on the environment.
// In production (env == "production"), it returns a JSON handler.
// Otherwise, it returns a text handler for development.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging is a middleware that logs HTTP requests with structured fields.
// It captures: method, path, status, latency (ms), request ID, broadcast ID
// (if a handler set one), response size, and error_code (for error responses).
//
// Websocket upgrades must be routed around this middleware: the wrapped
// writer does not implement http.Hijacker.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := newResponseWriter(w)
			r, ann := withAnnotations(r)

			next.ServeHTTP(rw, r)

			latency := time.Since(start).Milliseconds()

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", latency),
				slog.Int("size", rw.size),
			}

			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if traceID := GetTraceID(r); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}

			ann.mu.Lock()
			broadcastID, errorCode := ann.broadcastID, ann.errorCode
			ann.mu.Unlock()

			if broadcastID != "" {
				attrs = append(attrs, slog.String("broadcast_id", broadcastID))
			}

			// Add error code for error responses (4xx and 5xx)
			if rw.statusCode >= 400 && errorCode != "" {
				attrs = append(attrs, slog.String("error_code", errorCode))
			}

			// Log at appropriate level based on status code using LogAttrs
			if rw.statusCode >= 500 {
				logger.LogAttrs(r.Context(), slog.LevelError, "request completed", attrs...)
			} else if rw.statusCode >= 400 {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed", attrs...)
			} else {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
			}
		})
	}
}
