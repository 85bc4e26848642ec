// Package coordinate fans one extraction job out to every admitted
// provider and collects the results. Every provider call ends as a
// Result; errors and timeouts are classified, recorded against the
// provider's circuit breaker and returned alongside the successes.
package coordinate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/health"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/provider"
	"github.com/freightflow/extractd/internal/schema"
)

// ResultHook observes every collected result, synthesized timeouts
// included. Used to feed metrics without coupling the coordinator to a
// metrics backend.
type ResultHook func(provider.Result)

type Coordinator struct {
	registry *provider.Registry
	tracker  *health.Tracker
	log      *slog.Logger
	onResult ResultHook
}

func New(registry *provider.Registry, tracker *health.Tracker, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{registry: registry, tracker: tracker, log: logger}
}

// OnResult installs the result hook. Call before serving traffic.
func (c *Coordinator) OnResult(hook ResultHook) {
	c.onResult = hook
}

// Run extracts the document with every provider whose circuit admits
// the call, in parallel. It blocks until every admitted provider has
// answered or ctx expires; providers still in flight at expiry are
// recorded as timeouts. The only error is ErrNoProvidersAvailable,
// when every circuit is open.
func (c *Coordinator) Run(ctx context.Context, jobID uuid.UUID, doc *normalize.Document, sch *schema.Schema) ([]provider.Result, error) {
	var candidates []string
	for _, name := range c.registry.Ranked() {
		if c.tracker.Admit(name) {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 0 {
		c.log.Warn("coordinate.no_providers", "job_id", jobID)
		return nil, common.ErrNoProvidersAvailable
	}
	if len(candidates) == 1 {
		c.log.Warn("coordinate.degraded", "job_id", jobID, "provider", candidates[0])
	}

	c.log.Info("coordinate.fanout",
		"job_id", jobID,
		"providers", len(candidates),
		"pages", doc.Pages,
	)

	start := time.Now()
	resCh := make(chan provider.Result, len(candidates))
	for _, name := range candidates {
		adapter, ok := c.registry.Adapter(name)
		if !ok {
			// admitted but unregistered cannot happen unless wiring is
			// broken; synthesize an error result so the count stays right
			resCh <- provider.Result{
				JobID:    jobID,
				Provider: name,
				Outcome:  constants.OutcomeError,
				Detail:   "provider not registered",
				At:       time.Now().UTC(),
			}
			continue
		}
		go func(a provider.Adapter) {
			res := a.Extract(ctx, doc, sch)
			res.JobID = jobID
			resCh <- res
		}(adapter)
	}

	results := make([]provider.Result, 0, len(candidates))
	pending := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		pending[name] = true
	}

	for len(results) < len(candidates) {
		select {
		case res := <-resCh:
			delete(pending, res.Provider)
			c.collect(res)
			results = append(results, res)

		case <-ctx.Done():
			// deadline: everything still in flight becomes a timeout
			// result; the goroutines will unwind on their own since the
			// adapters honor ctx
			for name := range pending {
				res := provider.Result{
					JobID:    jobID,
					Provider: name,
					Outcome:  constants.OutcomeTimeout,
					Detail:   "deadline exceeded before response",
					Latency:  time.Since(start),
					At:       time.Now().UTC(),
				}
				c.collect(res)
				results = append(results, res)
			}
			c.log.Warn("coordinate.deadline",
				"job_id", jobID,
				"collected", len(results),
				"timed_out", len(pending),
			)
			return results, nil
		}
	}

	c.log.Info("coordinate.done",
		"job_id", jobID,
		"results", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func (c *Coordinator) collect(res provider.Result) {
	c.tracker.Record(res.Provider, res.Outcome)
	c.registry.Observe(res)
	if c.onResult != nil {
		c.onResult(res)
	}

	if res.Failed() {
		c.log.Warn("coordinate.provider_failed",
			"job_id", res.JobID,
			"provider", res.Provider,
			"outcome", res.Outcome,
			"detail", res.Detail,
		)
	} else {
		c.log.Info("coordinate.provider_ok",
			"job_id", res.JobID,
			"provider", res.Provider,
			"fields", len(res.Fields),
			"latency_ms", res.Latency.Milliseconds(),
		)
	}
}
