package middleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes set on every server span.
const (
	attrRequestID   = "request.id"
	attrBroadcastID = "broadcast.id"
	attrErrorCode   = "error.code"
)

// Tracing wraps next in an otelhttp server span named after the normalized
// route, e.g. "POST /studio/sessions/{id}/live". W3C trace context is
// extracted from incoming headers.
//
// Place it inside RequestID: the span carries the request id, plus the
// broadcast id and error code a handler reports through SetBroadcastID and
// SetErrorCode.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		annotate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := trace.SpanFromContext(r.Context())
			if id := GetRequestID(r.Context()); id != "" {
				span.SetAttributes(attribute.String(attrRequestID, id))
			}

			r, ann := withAnnotations(r)
			next.ServeHTTP(w, r)

			ann.mu.Lock()
			broadcastID, errorCode := ann.broadcastID, ann.errorCode
			ann.mu.Unlock()
			if broadcastID != "" {
				span.SetAttributes(attribute.String(attrBroadcastID, broadcastID))
			}
			if errorCode != "" {
				span.SetAttributes(attribute.String(attrErrorCode, errorCode))
			}
		})

		return otelhttp.NewHandler(annotate, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + normalizePath(r.URL.Path)
			}),
		)
	}
}

// GetTraceID returns the active trace id for r, or "".
func GetTraceID(r *http.Request) string {
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// withAnnotations returns r with an annotations holder, reusing one an outer
// middleware already installed.
func withAnnotations(r *http.Request) (*http.Request, *annotations) {
	if ann := annotationsFrom(r.Context()); ann != nil {
		return r, ann
	}
	ann := &annotations{}
	return r.WithContext(context.WithValue(r.Context(), annotationsKey{}, ann)), ann
}
