package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dittosmb", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, Config{SampleRate: 3}.sampleRatio())
	assert.Equal(t, 0.0, Config{SampleRate: -1}.sampleRatio())
	assert.Equal(t, 0.25, Config{SampleRate: 0.25}.sampleRatio())
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	ctx, span := StartSpan(ctx, "noop")
	defer span.End()
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))

	// Must not panic on a non-recording span.
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	AddEvent(ctx, "event")
}

func TestCommandSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	setTracer(provider.Tracer("test"), true)
	t.Cleanup(func() { _, _ = Init(context.Background(), DefaultConfig()) })

	ctx, span := StartCommandSpan(context.Background(), "LOCKING_ANDX", 17, 3, 1, SMBFID(9))
	assert.NotEmpty(t, TraceID(ctx))
	EndCommandSpan(span, 0xC0000054, false)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "smb1.LOCKING_ANDX", ended[0].Name())

	attrs := map[string]any{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "LOCKING_ANDX", attrs[AttrSMBCommand])
	assert.EqualValues(t, 17, attrs[AttrSMBMID])
	assert.EqualValues(t, 9, attrs[AttrSMBFID])
	assert.Equal(t, "0xc0000054", attrs[AttrSMBStatus])
	assert.Equal(t, "Error", ended[0].Status().Code.String())
}

func TestParseProfileType(t *testing.T) {
	_, err := parseProfileType("cpu")
	assert.NoError(t, err)
	_, err = parseProfileType("disk")
	assert.Error(t, err)

	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())
}
