package httpbridge

import (
	"net/http"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

var (
	spanRecorderOnce sync.Once
	spanRecorder     *tracetest.SpanRecorder
)

// recordSpans installs a recording provider once per process; the package
// tracer binds to the first global provider it sees.
func recordSpans() *tracetest.SpanRecorder {
	spanRecorderOnce.Do(func() {
		spanRecorder = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)))
	})
	return spanRecorder
}

func TestSpanKinds(t *testing.T) {
	rec := recordSpans()
	h := newHarness(t, true)
	srv, _ := newCallbackServer(t, http.StatusOK)
	h.register(enabledAccount("a", AccountSettings{WebhookPath: "/in", CallbackDefault: srv.URL}))

	resp := h.do(http.MethodPost, "/in", `{"conversationId":"c1","text":"hi"}`, nil)
	h.group.Wait()
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d %q", resp.Code, resp.Body.String())
	}

	want := map[string]trace.SpanKind{
		"httpbridge.inbound": trace.SpanKindInternal,
		"httpbridge.deliver": trace.SpanKindClient,
	}
	seen := make(map[string]bool)
	for _, span := range rec.Ended() {
		kind, ok := want[span.Name()]
		if !ok {
			continue
		}
		seen[span.Name()] = true
		if span.SpanKind() != kind {
			t.Errorf("%s kind = %v, want %v", span.Name(), span.SpanKind(), kind)
		}
	}
	for name := range want {
		if !seen[name] {
			t.Errorf("no %s span recorded", name)
		}
	}
}
