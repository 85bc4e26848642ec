package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the explicit set of extraction backends the service runs
// with. Adapters are registered once at startup; nothing is discovered
// at runtime.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // registration order, the stable fallback ordering
}

type entry struct {
	adapter Adapter
	weight  int
	cost    float64
	metrics Metrics
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds an adapter under its own name. Weight breaks consensus
// ties; cost feeds the balanced ordering. Duplicate names are a wiring
// bug, not a runtime condition.
func (r *Registry) Register(a Adapter, weight int, costPerCall float64) error {
	if a == nil {
		return fmt.Errorf("nil adapter")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter with empty name")
	}
	if weight < 1 {
		weight = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.entries[name] = &entry{adapter: a, weight: weight, cost: costPerCall}
	r.order = append(r.order, name)
	return nil
}

// Adapter returns the registered adapter by name.
func (r *Registry) Adapter(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Weight returns the consensus tie-break weight for a provider, 1 for
// unknown names so a stray result still counts.
func (r *Registry) Weight(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.weight
	}
	return 1
}

// Names returns all registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Observe folds a call result into the provider's running metrics.
func (r *Registry) Observe(res Result) {
	r.mu.RLock()
	e, ok := r.entries[res.Provider]
	r.mu.RUnlock()
	if ok {
		e.metrics.Record(res)
	}
}

// Metrics returns the current stats snapshot for one provider.
func (r *Registry) Metrics(name string) (MetricsSnapshot, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return MetricsSnapshot{}, false
	}
	return e.metrics.Snapshot(), true
}

// Balanced composite weighting. Reliability and answer quality dominate;
// latency and per-call cost nudge the order without overriding them.
const (
	scoreQualityWeight     = 0.3
	scoreSpeedWeight       = 0.2
	scoreCostWeight        = 0.2
	scoreReliabilityWeight = 0.3

	// latency at or beyond this scores zero on the speed axis
	speedCeiling = 30 * time.Second
)

// Score computes the composite ordering score for one provider. An
// unseen provider scores on weight alone, so fresh deployments are not
// starved before their first call.
func (r *Registry) Score(name string) float64 {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	snap := e.metrics.Snapshot()
	if snap.Total == 0 {
		return 0.5 + float64(e.weight)/100
	}

	speed := 1 - float64(snap.AvgLatency)/float64(speedCeiling)
	if speed < 0 {
		speed = 0
	}
	costScore := 1 / (1 + e.cost)

	return scoreQualityWeight*snap.AvgQuality +
		scoreSpeedWeight*speed +
		scoreCostWeight*costScore +
		scoreReliabilityWeight*snap.SuccessRate
}

// Ranked returns provider names ordered best-first by composite score,
// with weight then name as deterministic tie-breaks.
func (r *Registry) Ranked() []string {
	names := r.Names()
	sort.SliceStable(names, func(i, j int) bool {
		si, sj := r.Score(names[i]), r.Score(names[j])
		if si != sj {
			return si > sj
		}
		wi, wj := r.Weight(names[i]), r.Weight(names[j])
		if wi != wj {
			return wi > wj
		}
		return names[i] < names[j]
	})
	return names
}
