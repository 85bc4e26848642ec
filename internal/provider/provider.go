package provider

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/schema"
)

// Result is the uniform record of one provider call. It is written once
// per (job, provider, attempt) and never mutated; failed calls are
// results too, not errors.
type Result struct {
	JobID      uuid.UUID             `json:"job_id"`
	Provider   string                `json:"provider"`
	Outcome    constants.Outcome     `json:"outcome"`
	Fields     map[string]any        `json:"fields,omitempty"`
	Confidence map[string]float64    `json:"confidence,omitempty"`
	Latency    time.Duration         `json:"latency"`
	Detail     string                `json:"detail,omitempty"` // error text for failed outcomes
	Raw        []byte                `json:"-"`                // raw provider payload, in-process only
	At         time.Time             `json:"at"`
}

// Failed reports whether the call produced no usable field map.
func (r Result) Failed() bool {
	return r.Outcome != constants.OutcomeSuccess
}

// FieldString renders a field value in its canonical string form, the
// shape consensus normalization operates on.
func (r Result) FieldString(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Adapter wraps one extraction backend behind the uniform contract.
// Extract must honor ctx cancellation, never panic, and classify every
// failure into the Result outcome taxonomy.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, doc *normalize.Document, sch *schema.Schema) Result
}

// classify maps a transport-level error to an outcome. Context expiry is
// a timeout by definition: the caller stopped waiting.
func classify(ctx context.Context, err error) constants.Outcome {
	if ctx.Err() != nil {
		return constants.OutcomeTimeout
	}
	if err != nil {
		return constants.OutcomeError
	}
	return constants.OutcomeSuccess
}

func failure(name string, outcome constants.Outcome, detail string, started time.Time, raw []byte) Result {
	return Result{
		Provider: name,
		Outcome:  outcome,
		Detail:   detail,
		Latency:  time.Since(started),
		Raw:      raw,
		At:       time.Now().UTC(),
	}
}
