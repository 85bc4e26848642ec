package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/schema"
)

type fakeAdapter struct {
	name string
	res  Result
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Extract(context.Context, *normalize.Document, *schema.Schema) Result {
	return f.res
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeAdapter{name: "openai"}, 3, 0.01))
	require.NoError(t, reg.Register(&fakeAdapter{name: "anthropic"}, 2, 0.015))

	a, ok := reg.Adapter("openai")
	assert.True(t, ok)
	assert.Equal(t, "openai", a.Name())

	_, ok = reg.Adapter("nonesuch")
	assert.False(t, ok)

	assert.Equal(t, []string{"openai", "anthropic"}, reg.Names())
	assert.Equal(t, 3, reg.Weight("openai"))
	assert.Equal(t, 1, reg.Weight("nonesuch"))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeAdapter{name: "openai"}, 3, 0))
	assert.Error(t, reg.Register(&fakeAdapter{name: "openai"}, 1, 0))
	assert.Error(t, reg.Register(nil, 1, 0))
}

func successResult(name string, latency time.Duration, quality float64) Result {
	return Result{
		Provider:   name,
		Outcome:    constants.OutcomeSuccess,
		Fields:     map[string]any{"f": "v"},
		Confidence: map[string]float64{"f": quality},
		Latency:    latency,
		At:         time.Now().UTC(),
	}
}

func failResult(name string) Result {
	return Result{Provider: name, Outcome: constants.OutcomeTimeout, At: time.Now().UTC()}
}

func TestMetricsEMA(t *testing.T) {
	var m Metrics

	m.Record(successResult("p", time.Second, 0.9))
	snap := m.Snapshot()
	assert.Equal(t, 1.0, snap.SuccessRate)
	assert.Equal(t, time.Second, snap.AvgLatency)
	assert.Equal(t, 0.9, snap.AvgQuality)
	assert.EqualValues(t, 1, snap.Total)

	m.Record(failResult("p"))
	snap = m.Snapshot()
	assert.InDelta(t, 0.9, snap.SuccessRate, 1e-9)
	assert.EqualValues(t, 2, snap.Total)
	assert.EqualValues(t, 1, snap.Failures)
	// failures leave latency and quality untouched
	assert.Equal(t, time.Second, snap.AvgLatency)
	assert.Equal(t, 0.9, snap.AvgQuality)

	m.Record(successResult("p", 2*time.Second, 0.5))
	snap = m.Snapshot()
	assert.InDelta(t, 0.91, snap.SuccessRate, 1e-9)
	assert.InDelta(t, float64(1100*time.Millisecond), float64(snap.AvgLatency), float64(time.Millisecond))
	assert.InDelta(t, 0.86, snap.AvgQuality, 1e-9)
}

func TestRankedPrefersReliableProviders(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeAdapter{name: "openai"}, 3, 0.01))
	require.NoError(t, reg.Register(&fakeAdapter{name: "anthropic"}, 2, 0.01))

	// anthropic answers well and fast, openai keeps timing out
	for i := 0; i < 10; i++ {
		reg.Observe(successResult("anthropic", 800*time.Millisecond, 0.9))
		reg.Observe(failResult("openai"))
	}

	ranked := reg.Ranked()
	assert.Equal(t, "anthropic", ranked[0])
	assert.Greater(t, reg.Score("anthropic"), reg.Score("openai"))
}

func TestRankedUnseenProvidersFallBackToWeight(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeAdapter{name: "anthropic"}, 2, 0.01))
	require.NoError(t, reg.Register(&fakeAdapter{name: "openai"}, 3, 0.01))
	require.NoError(t, reg.Register(&fakeAdapter{name: "azure"}, 1, 0.01))

	assert.Equal(t, []string{"openai", "anthropic", "azure"}, reg.Ranked())
}
