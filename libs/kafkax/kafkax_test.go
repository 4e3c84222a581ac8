package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "booking.appointment.booked.v1", Key: []byte("evt-1")})
	if meta.EventID != "evt-1" || meta.EventType != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	meta = ExtractEventMeta(kafka.Message{
		Topic:   "t",
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("h-1")}, {Key: "event_type", Value: []byte("custom")}},
	})
	if meta.EventID != "h-1" || meta.EventType != "custom" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka2:9092")
	if len(got) != 2 || got[1] != "kafka2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, nil)
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	out := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if out.TraceID() != sc.TraceID() {
		t.Fatalf("expected trace id %s, got %s", sc.TraceID(), out.TraceID())
	}
}
