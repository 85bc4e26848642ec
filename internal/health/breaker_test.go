package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/extractd/constants"
)

// fakeClock drives breaker time by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	b := NewBreaker(cfg)
	clk := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	b.now = clk.now
	return b, clk
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute})

	for i := 0; i < 4; i++ {
		assert.True(t, b.Allow())
		b.Record(false)
		assert.Equal(t, constants.CircuitClosed, b.State(), "failure %d", i+1)
	}

	assert.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, constants.CircuitOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute})

	for i := 0; i < 4; i++ {
		b.Record(false)
	}
	b.Record(true)
	assert.Zero(t, b.Failures())

	// four more failures still do not trip it
	for i := 0; i < 4; i++ {
		b.Record(false)
	}
	assert.Equal(t, constants.CircuitClosed, b.State())
	b.Record(false)
	assert.Equal(t, constants.CircuitOpen, b.State())
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	b.Record(false)
	b.Record(false)
	require.Equal(t, constants.CircuitOpen, b.State())

	// still cooling down
	clk.advance(30 * time.Second)
	assert.False(t, b.Allow())

	// cooldown elapsed: exactly one probe gets through
	clk.advance(31 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, constants.CircuitHalfOpen, b.State())
	assert.False(t, b.Allow())
	assert.False(t, b.Allow())

	// probe succeeds: closed again, failure run cleared
	b.Record(true)
	assert.Equal(t, constants.CircuitClosed, b.State())
	assert.Zero(t, b.Failures())
	assert.True(t, b.Allow())
}

func TestBreakerFailedProbeDoublesCooldown(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		MaxCooldown:      3 * time.Minute,
	})

	b.Record(false)
	require.Equal(t, constants.CircuitOpen, b.State())

	// first probe after 1m fails: cooldown doubles to 2m
	clk.advance(time.Minute + time.Second)
	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, constants.CircuitOpen, b.State())

	clk.advance(time.Minute + time.Second)
	assert.False(t, b.Allow(), "1m into a 2m cooldown")
	clk.advance(time.Minute)
	require.True(t, b.Allow())

	// second failed probe: doubling is capped at 3m, not 4m
	b.Record(false)
	clk.advance(3*time.Minute + time.Second)
	assert.True(t, b.Allow())

	// successful probe restores the base cooldown
	b.Record(true)
	b.Record(false)
	require.Equal(t, constants.CircuitOpen, b.State())
	clk.advance(time.Minute + time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerLateResultWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	b.Record(false)
	require.Equal(t, constants.CircuitOpen, b.State())

	// a straggler from before the trip must not flip the state
	b.Record(true)
	assert.Equal(t, constants.CircuitOpen, b.State())
}

func TestBreakerHistory(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	b.Record(false)
	clk.advance(2 * time.Minute)
	require.True(t, b.Allow())
	b.Record(true)

	h := b.History()
	require.Len(t, h, 3)
	assert.Equal(t, constants.CircuitClosed, h[0].From)
	assert.Equal(t, constants.CircuitOpen, h[0].To)
	assert.Equal(t, constants.CircuitHalfOpen, h[1].To)
	assert.Equal(t, constants.CircuitClosed, h[2].To)
}

func TestTrackerAdmitAndRecord(t *testing.T) {
	tr := NewTracker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}, nil)

	var transitions []string
	tr.OnTransition(func(provider string, from, to constants.CircuitState) {
		transitions = append(transitions, provider+":"+string(from)+">"+string(to))
	})

	assert.True(t, tr.Admit("openai"))
	tr.Record("openai", constants.OutcomeTimeout)
	tr.Record("openai", constants.OutcomeTimeout)
	assert.False(t, tr.Admit("openai"))

	// other providers are unaffected
	assert.True(t, tr.Admit("anthropic"))

	require.Len(t, transitions, 1)
	assert.Equal(t, "openai:closed>open", transitions[0])

	snap := tr.Snapshot()
	states := map[string]constants.CircuitState{}
	for _, h := range snap {
		states[h.Provider] = h.State
	}
	assert.Equal(t, constants.CircuitOpen, states["openai"])
	assert.Equal(t, constants.CircuitClosed, states["anthropic"])
}

func TestTrackerMalformedCountsAsFailure(t *testing.T) {
	tr := NewTracker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}, nil)

	tr.Record("azure", constants.OutcomeMalformed)
	tr.Record("azure", constants.OutcomeError)
	assert.False(t, tr.Admit("azure"))

	// success elsewhere keeps counting properly
	tr2 := NewTracker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute}, nil)
	tr2.Record("azure", constants.OutcomeMalformed)
	tr2.Record("azure", constants.OutcomeSuccess)
	tr2.Record("azure", constants.OutcomeError)
	assert.True(t, tr2.Admit("azure"))
}
