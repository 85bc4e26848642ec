package health

import (
	"log/slog"
	"sync"

	"github.com/freightflow/extractd/constants"
)

// TransitionHook is called outside the tracker lock after a breaker
// changes state, so metrics and logs can observe trips without coupling
// the tracker to them.
type TransitionHook func(provider string, from, to constants.CircuitState)

// Tracker owns one Breaker per provider and is the single place call
// outcomes are reported to.
type Tracker struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
	log      *slog.Logger
	onChange TransitionHook
}

func NewTracker(cfg BreakerConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
		log:      logger,
	}
}

// OnTransition installs the state-change hook. Call before serving
// traffic; the hook is not synchronized against concurrent installs.
func (t *Tracker) OnTransition(hook TransitionHook) {
	t.onChange = hook
}

func (t *Tracker) breaker(provider string) *Breaker {
	t.mu.RLock()
	b, ok := t.breakers[provider]
	t.mu.RUnlock()
	if ok {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok = t.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(t.cfg)
	t.breakers[provider] = b
	return b
}

// Admit reports whether the provider may be called right now. A
// half-open admission reserves the single probe slot.
func (t *Tracker) Admit(provider string) bool {
	b := t.breaker(provider)
	before := b.State()
	allowed := b.Allow()
	after := b.State()

	if before != after {
		t.log.Info("health.circuit.transition", "provider", provider, "from", before, "to", after)
		if t.onChange != nil {
			t.onChange(provider, before, after)
		}
	}
	if !allowed {
		t.log.Debug("health.circuit.rejected", "provider", provider, "state", after)
	}
	return allowed
}

// Record feeds one call outcome into the provider's breaker.
func (t *Tracker) Record(provider string, outcome constants.Outcome) {
	b := t.breaker(provider)
	before := b.State()
	b.Record(!outcome.IsFailure())
	after := b.State()

	if before != after {
		t.log.Warn("health.circuit.transition",
			"provider", provider, "from", before, "to", after, "outcome", outcome)
		if t.onChange != nil {
			t.onChange(provider, before, after)
		}
	}
}

// ProviderHealth is the status-endpoint view of one breaker.
type ProviderHealth struct {
	Provider    string                 `json:"provider"`
	State       constants.CircuitState `json:"state"`
	Failures    int                    `json:"consecutive_failures"`
	Transitions []Transition           `json:"transitions,omitempty"`
}

// Snapshot returns the current state of every tracked provider.
func (t *Tracker) Snapshot() []ProviderHealth {
	t.mu.RLock()
	names := make([]string, 0, len(t.breakers))
	for name := range t.breakers {
		names = append(names, name)
	}
	t.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		b := t.breaker(name)
		out = append(out, ProviderHealth{
			Provider:    name,
			State:       b.State(),
			Failures:    b.Failures(),
			Transitions: b.History(),
		})
	}
	return out
}
