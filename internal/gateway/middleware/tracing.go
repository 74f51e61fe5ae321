package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/aetherflow/lobby/internal/gateway/tracing"
)

// TracingMiddleware opens a server span per request
func TracingMiddleware(tracer *tracing.Tracer) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !tracer.IsEnabled() {
				next(w, r)
				return
			}

			ctx := tracer.Extract(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(r.Method),
					semconv.HTTPRoute(r.URL.Path),
					semconv.HTTPTarget(r.URL.RequestURI()),
					semconv.NetHostName(r.Host),
					attribute.String("http.client_ip", r.RemoteAddr),
					attribute.String("request_id", RequestIDFromContext(r.Context())),
				),
			)
			defer span.End()

			if user := r.Header.Get(UserIDHeader); user != "" {
				span.SetAttributes(attribute.String("lobby.user_id", user))
			}

			rec := newStatusRecorder(w)
			if traceID := tracing.TraceID(ctx); traceID != "" {
				rec.Header().Set("X-Trace-ID", traceID)
			}

			next(rec, r.WithContext(ctx))

			span.SetAttributes(
				semconv.HTTPStatusCode(rec.statusCode),
				attribute.Int64("http.response_size", rec.size),
			)
			if rec.statusCode >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}
	}
}
