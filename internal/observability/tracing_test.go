package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerWithoutEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown error = %v", err)
		}
	}()
	ctx, span := tracer.TraceMessage(context.Background(), "a1", "web")
	span.End()
	if ctx == nil {
		t.Fatal("expected a context")
	}
}

func TestNilTracerIsUsable(t *testing.T) {
	var tracer *Tracer
	_, span := tracer.TraceAction(context.Background(), "create_task")
	RecordError(span, errors.New("boom"))
	span.End()
}

func TestTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerFromProvider(provider, "test")

	ctx, root := tracer.TraceMessage(context.Background(), "agent-1", "telegram")
	_, call := tracer.TraceLLMRequest(ctx, "openai", "gpt-4o")
	RecordError(call, errors.New("upstream 500"))
	call.End()
	root.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	llm := spans[0]
	if llm.Name() != "llm.openai" {
		t.Errorf("span name = %q", llm.Name())
	}
	if llm.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", llm.Status().Code)
	}
	if llm.Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("provider span should be a child of the message span")
	}
	found := false
	for _, kv := range spans[1].Attributes() {
		if kv.Key == attribute.Key("message.channel") && kv.Value.AsString() == "telegram" {
			found = true
		}
	}
	if !found {
		t.Errorf("message.channel attribute missing: %v", spans[1].Attributes())
	}
}

func TestSamplerFor(t *testing.T) {
	if got := samplerFor(1).Description(); got != "AlwaysOnSampler" {
		t.Errorf("rate 1 sampler = %s", got)
	}
	if got := samplerFor(-1).Description(); got != "AlwaysOffSampler" {
		t.Errorf("rate -1 sampler = %s", got)
	}
}
