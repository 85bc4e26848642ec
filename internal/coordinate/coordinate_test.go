package coordinate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/health"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/provider"
	"github.com/freightflow/extractd/internal/schema"
)

// scriptedAdapter answers with a fixed outcome after an optional delay,
// honoring ctx like a real backend.
type scriptedAdapter struct {
	name    string
	delay   time.Duration
	outcome constants.Outcome
	fields  map[string]any
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) Extract(ctx context.Context, _ *normalize.Document, _ *schema.Schema) provider.Result {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return provider.Result{
				Provider: s.name,
				Outcome:  constants.OutcomeTimeout,
				Detail:   ctx.Err().Error(),
				At:       time.Now().UTC(),
			}
		}
	}
	return provider.Result{
		Provider:   s.name,
		Outcome:    s.outcome,
		Fields:     s.fields,
		Confidence: map[string]float64{},
		Latency:    s.delay,
		At:         time.Now().UTC(),
	}
}

func testSetup(t *testing.T, adapters ...*scriptedAdapter) (*Coordinator, *provider.Registry, *health.Tracker) {
	t.Helper()
	reg := provider.NewRegistry()
	for i, a := range adapters {
		require.NoError(t, reg.Register(a, len(adapters)-i, 0.01))
	}
	tracker := health.NewTracker(health.BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}, nil)
	return New(reg, tracker, nil), reg, tracker
}

func doc() *normalize.Document {
	return &normalize.Document{Text: "COMANDA DE TRANSPORT", Pages: 1}
}

func TestRunCollectsAllProviders(t *testing.T) {
	ok := map[string]any{"client_vat_number": "RO123456"}
	coord, _, _ := testSetup(t,
		&scriptedAdapter{name: "openai", outcome: constants.OutcomeSuccess, fields: ok},
		&scriptedAdapter{name: "anthropic", outcome: constants.OutcomeSuccess, fields: ok},
		&scriptedAdapter{name: "azure", outcome: constants.OutcomeError},
	)

	jobID := uuid.New()
	results, err := coord.Run(context.Background(), jobID, doc(), schema.TransportOrder())
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := map[string]provider.Result{}
	for _, r := range results {
		assert.Equal(t, jobID, r.JobID)
		byName[r.Provider] = r
	}
	assert.False(t, byName["openai"].Failed())
	assert.False(t, byName["anthropic"].Failed())
	assert.True(t, byName["azure"].Failed())
}

func TestRunFailuresAreResultsNotErrors(t *testing.T) {
	coord, _, _ := testSetup(t,
		&scriptedAdapter{name: "openai", outcome: constants.OutcomeMalformed},
		&scriptedAdapter{name: "anthropic", outcome: constants.OutcomeError},
	)

	results, err := coord.Run(context.Background(), uuid.New(), doc(), schema.TransportOrder())
	require.NoError(t, err, "provider failures must never surface as errors")
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Failed())
	}
}

func TestRunDeadlineSynthesizesTimeouts(t *testing.T) {
	coord, _, tracker := testSetup(t,
		&scriptedAdapter{name: "openai", outcome: constants.OutcomeSuccess, fields: map[string]any{"pickup_city": "Arad"}},
		&scriptedAdapter{name: "anthropic", delay: 5 * time.Second, outcome: constants.OutcomeSuccess},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	results, err := coord.Run(ctx, uuid.New(), doc(), schema.TransportOrder())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]provider.Result{}
	for _, r := range results {
		byName[r.Provider] = r
	}
	assert.Equal(t, constants.OutcomeSuccess, byName["openai"].Outcome)
	assert.Equal(t, constants.OutcomeTimeout, byName["anthropic"].Outcome)

	// the synthesized timeout counted against anthropic's breaker
	var anthropicFailures int
	for _, h := range tracker.Snapshot() {
		if h.Provider == "anthropic" {
			anthropicFailures = h.Failures
		}
	}
	assert.Equal(t, 1, anthropicFailures)
}

func TestRunSkipsOpenCircuits(t *testing.T) {
	coord, _, tracker := testSetup(t,
		&scriptedAdapter{name: "openai", outcome: constants.OutcomeSuccess, fields: map[string]any{"pickup_city": "Arad"}},
		&scriptedAdapter{name: "anthropic", outcome: constants.OutcomeSuccess, fields: map[string]any{"pickup_city": "Arad"}},
	)

	// trip anthropic's breaker
	tracker.Record("anthropic", constants.OutcomeError)
	tracker.Record("anthropic", constants.OutcomeError)

	results, err := coord.Run(context.Background(), uuid.New(), doc(), schema.TransportOrder())
	require.NoError(t, err)
	require.Len(t, results, 1, "degraded single-provider run")
	assert.Equal(t, "openai", results[0].Provider)
}

func TestRunNoProvidersAvailable(t *testing.T) {
	coord, _, tracker := testSetup(t,
		&scriptedAdapter{name: "openai", outcome: constants.OutcomeSuccess},
		&scriptedAdapter{name: "anthropic", outcome: constants.OutcomeSuccess},
	)

	for _, name := range []string{"openai", "anthropic"} {
		tracker.Record(name, constants.OutcomeError)
		tracker.Record(name, constants.OutcomeError)
	}

	results, err := coord.Run(context.Background(), uuid.New(), doc(), schema.TransportOrder())
	assert.Nil(t, results)
	assert.ErrorIs(t, err, common.ErrNoProvidersAvailable)
}

func TestRunFeedsRegistryMetrics(t *testing.T) {
	coord, reg, _ := testSetup(t,
		&scriptedAdapter{name: "openai", outcome: constants.OutcomeSuccess, fields: map[string]any{"pickup_city": "Arad"}},
	)

	var hooked []provider.Result
	coord.OnResult(func(r provider.Result) { hooked = append(hooked, r) })

	_, err := coord.Run(context.Background(), uuid.New(), doc(), schema.TransportOrder())
	require.NoError(t, err)

	snap, ok := reg.Metrics("openai")
	require.True(t, ok)
	assert.EqualValues(t, 1, snap.Total)
	assert.Equal(t, 1.0, snap.SuccessRate)
	assert.Len(t, hooked, 1)
}
