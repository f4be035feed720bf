package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return rec
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := make(map[attribute.Key]string)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestTracing_SpanNamedByRoute(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/studio/sessions", "POST /studio/sessions"},
		{http.MethodPost, "/studio/sessions/b1/live", "POST /studio/sessions/{id}/live"},
		{http.MethodPut, "/studio/sessions/b1/channels/G1/mute", "PUT /studio/sessions/{id}/channels/{pid}/mute"},
		{http.MethodGet, "/broadcasts/b1/chat", "GET /broadcasts/{id}/chat"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rec := recordSpans(t)
			handler := Tracing("studiocast-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if spans[0].Name() != tt.want {
				t.Errorf("expected span name %q, got %q", tt.want, spans[0].Name())
			}
		})
	}
}

func TestTracing_AnnotatesSpan(t *testing.T) {
	rec := recordSpans(t)

	var traceID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		SetBroadcastID(r.Context(), "b1")
		SetErrorCode(r.Context(), "no_connected_host")
		w.WriteHeader(http.StatusConflict)
	})
	handler := RequestID(Tracing("studiocast-test")(inner))

	req := httptest.NewRequest(http.MethodPost, "/studio/sessions/b1/live", nil)
	req.Header.Set(RequestIDHeader, "req-live-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if got := span.SpanContext().TraceID().String(); got != traceID {
		t.Errorf("expected handler to see trace %s, got %s", got, traceID)
	}

	attrs := spanAttrs(span)
	want := map[attribute.Key]string{
		attrRequestID:   "req-live-1",
		attrBroadcastID: "b1",
		attrErrorCode:   "no_connected_host",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("expected %s=%q, got %q", k, v, attrs[k])
		}
	}
}

func TestTracing_SharesAnnotationsWithLogging(t *testing.T) {
	rec := recordSpans(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetBroadcastID(r.Context(), "b7")
	})
	handler := Tracing("studiocast-test")(Logging(newTestLogger(&bytes.Buffer{}))(inner))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/studio/sessions/b7", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spanAttrs(spans[0])[attrBroadcastID]; got != "b7" {
		t.Errorf("expected broadcast.id b7 through the logging layer, got %q", got)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if id := GetTraceID(httptest.NewRequest(http.MethodGet, "/health", nil)); id != "" {
		t.Errorf("expected empty trace id, got %q", id)
	}
}
