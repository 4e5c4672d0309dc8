package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/supplierd/internal/logging"
)

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Name()
	}
	return out
}

func TestService_ExtractSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	f := newFixture(t, func(o *Options) { o.TracerProvider = tp })

	_, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)

	spans := recorder.Ended()
	assert.ElementsMatch(t,
		[]string{"pipeline.search", "pipeline.extract_mentions", "pipeline.deduplicate", "pipeline.extract"},
		spanNames(spans))

	var root sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "pipeline.extract" {
			root = s
		}
	}
	require.NotNil(t, root)
	for _, s := range spans {
		if s != root {
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), s.Name())
		}
	}

	// Cache hits do not start a run.
	recorder2 := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(recorder2)
	_, err = f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)
	assert.Empty(t, recorder2.Ended())
}

func TestService_SearchErrorRecordedOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	f := newFixture(t, func(o *Options) { o.TracerProvider = tp })
	f.searcher.err = errors.New("quota exceeded")

	_, err := f.svc.Extract(context.Background(), Request{CompanyName: "Tesco"})
	require.NoError(t, err)

	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "pipeline.search":
			assert.Equal(t, codes.Error, s.Status().Code)
		case "pipeline.extract":
			assert.Equal(t, codes.Unset, s.Status().Code, "search failures do not fail the run")
		}
	}
}

func TestService_LogsCarryRequestID(t *testing.T) {
	logger := logging.NewTestLogger()
	f := newFixture(t, func(o *Options) { o.Logger = logger.Logger })

	ctx := logging.WithRequestID(context.Background(), "req-42")
	_, err := f.svc.Extract(ctx, Request{CompanyName: "Tesco"})
	require.NoError(t, err)

	logger.AssertLogged(t, zapcore.InfoLevel, "extracted suppliers")
	logger.AssertField(t, "extracted suppliers", "request.id", "req-42")
	logger.AssertField(t, "extracted suppliers", "company", "Tesco")
}
