package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_RequiresServerAndName(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "credits"}, zap.NewNop())
	assert.ErrorContains(t, err, "server address")

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://pyroscope:4040"}, zap.NewNop())
	assert.ErrorContains(t, err, "application name")
}

func TestProfileTypes(t *testing.T) {
	assert.Len(t, profileTypes(false), 6)
	assert.Len(t, profileTypes(true), 10)
}

func TestWithOperationLabel(t *testing.T) {
	var label string
	var ok bool
	WithOperationLabel(context.Background(), "POST /api/v1/credits/deduct", func(ctx context.Context) {
		label, ok = pprof.Label(ctx, "operation")
	})
	assert.True(t, ok)
	assert.Equal(t, "POST /api/v1/credits/deduct", label)

	called := false
	WithOperationLabel(context.Background(), "", func(ctx context.Context) {
		_, ok = pprof.Label(ctx, "operation")
		called = true
	})
	assert.True(t, called)
	assert.False(t, ok)
}

func TestEnableSpanProfiles_NoProvider(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{}, zap.NewNop())
	require.NoError(t, err)
	tp.EnableSpanProfiles()
	assert.False(t, tp.IsEnabled())
}
