// Package health gates provider admission with per-provider circuit
// breakers and records call outcomes for the rest of the pipeline.
package health

import (
	"sync"
	"time"

	"github.com/freightflow/extractd/constants"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the run of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before letting a
	// probe through.
	Cooldown time.Duration
	// MaxCooldown caps the doubling after repeated failed probes.
	MaxCooldown time.Duration
}

func (c *BreakerConfig) withDefaults() BreakerConfig {
	out := *c
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 60 * time.Second
	}
	if out.MaxCooldown <= 0 {
		out.MaxCooldown = 10 * time.Minute
	}
	return out
}

// Transition is one state change, kept for the health endpoint.
type Transition struct {
	From constants.CircuitState `json:"from"`
	To   constants.CircuitState `json:"to"`
	At   time.Time              `json:"at"`
}

// Breaker is a consecutive-failure circuit breaker. Closed admits all
// calls; FailureThreshold failures in a row open it. After the cooldown
// a single probe is admitted (half-open); a successful probe closes the
// circuit and resets the cooldown, a failed one reopens it with the
// cooldown doubled up to MaxCooldown.
type Breaker struct {
	mu sync.Mutex

	cfg      BreakerConfig
	state    constants.CircuitState
	failures int

	cooldown time.Duration
	openedAt time.Time
	probing  bool

	history []Transition

	now func() time.Time
}

const historyCap = 32

func NewBreaker(cfg BreakerConfig) *Breaker {
	c := cfg.withDefaults()
	return &Breaker{
		cfg:      c,
		state:    constants.CircuitClosed,
		cooldown: c.Cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it admits
// exactly one probe once the cooldown has elapsed; concurrent callers
// racing for the probe slot lose and stay rejected until the probe
// resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case constants.CircuitClosed:
		return true
	case constants.CircuitHalfOpen:
		// probe already in flight
		return false
	case constants.CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(constants.CircuitHalfOpen)
		b.probing = true
		return true
	}
	return false
}

// Record feeds one call outcome back into the breaker.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case constants.CircuitHalfOpen:
		b.probing = false
		if success {
			b.failures = 0
			b.cooldown = b.cfg.Cooldown
			b.transition(constants.CircuitClosed)
			return
		}
		b.cooldown *= 2
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		b.openedAt = b.now()
		b.transition(constants.CircuitOpen)

	case constants.CircuitClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(constants.CircuitOpen)
		}

	case constants.CircuitOpen:
		// late result from a call admitted before the trip; the circuit
		// is already open, nothing to do
	}
}

// State returns the current circuit state without side effects.
func (b *Breaker) State() constants.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// History returns recent transitions, oldest first.
func (b *Breaker) History() []Transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transition, len(b.history))
	copy(out, b.history)
	return out
}

// transition must be called with the lock held.
func (b *Breaker) transition(to constants.CircuitState) {
	b.history = append(b.history, Transition{From: b.state, To: to, At: b.now()})
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}
	b.state = to
}
