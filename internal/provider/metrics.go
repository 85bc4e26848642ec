package provider

import (
	"sync"
	"time"
)

// emaAlpha is the smoothing factor for the running provider averages.
// Small enough that one bad call does not crater a provider's score,
// large enough that sustained degradation shows within a few dozen calls.
const emaAlpha = 0.1

// Metrics keeps exponentially-weighted running stats for one provider.
// All fields are updated under the mutex from Observe and read through
// Snapshot.
type Metrics struct {
	mu sync.Mutex

	seeded      bool
	successRate float64
	avgLatency  time.Duration
	avgQuality  float64

	total       int64
	failures    int64
	lastSuccess time.Time
	lastFailure time.Time
}

// MetricsSnapshot is the read-side copy of Metrics, safe to hand to
// status endpoints and scoring without holding the lock.
type MetricsSnapshot struct {
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	AvgQuality  float64       `json:"avg_quality"`
	Total       int64         `json:"total_requests"`
	Failures    int64         `json:"failed_requests"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
	LastFailure time.Time     `json:"last_failure,omitempty"`
}

// Record folds one call result into the running averages. Latency and
// quality only move on success; a timed-out call tells us nothing about
// how good the provider's answers are, only that it failed.
func (m *Metrics) Record(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	success := !res.Failed()
	if !success {
		m.failures++
		m.lastFailure = res.At
	} else {
		m.lastSuccess = res.At
	}

	quality := meanConfidence(res.Confidence)

	if !m.seeded {
		m.seeded = true
		if success {
			m.successRate = 1
			m.avgLatency = res.Latency
			m.avgQuality = quality
		} else {
			m.successRate = 0
		}
		return
	}

	sample := 0.0
	if success {
		sample = 1.0
	}
	m.successRate = (1-emaAlpha)*m.successRate + emaAlpha*sample
	if success {
		m.avgLatency = time.Duration((1-emaAlpha)*float64(m.avgLatency) + emaAlpha*float64(res.Latency))
		m.avgQuality = (1-emaAlpha)*m.avgQuality + emaAlpha*quality
	}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		SuccessRate: m.successRate,
		AvgLatency:  m.avgLatency,
		AvgQuality:  m.avgQuality,
		Total:       m.total,
		Failures:    m.failures,
		LastSuccess: m.lastSuccess,
		LastFailure: m.lastFailure,
	}
}

func meanConfidence(confidence map[string]float64) float64 {
	if len(confidence) == 0 {
		return 0
	}
	var sum float64
	for _, v := range confidence {
		sum += v
	}
	return sum / float64(len(confidence))
}
