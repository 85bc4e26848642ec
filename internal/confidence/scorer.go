package confidence

import (
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/internal/consensus"
	"github.com/freightflow/extractd/internal/schema"
)

// Weights configures the per-field confidence blend and the flagging
// thresholds.
type Weights struct {
	// Agreement and Rule must sum to 1.
	Agreement float64
	Rule      float64
	// FieldThreshold flags any field scoring below it.
	FieldThreshold float64
}

// DefaultWeights is the production blend: agreement dominates, rule
// validity tempers it.
func DefaultWeights() Weights {
	return Weights{Agreement: 0.6, Rule: 0.4, FieldThreshold: 0.85}
}

// FieldScore is the scored verdict for one field.
type FieldScore struct {
	Name       string   `json:"name"`
	Value      any      `json:"value,omitempty"`
	Source     string   `json:"source,omitempty"`
	Agreement  float64  `json:"agreement"`
	RuleValid  bool     `json:"rule_valid"`
	Reasons    []string `json:"reasons,omitempty"`
	Confidence float64  `json:"confidence"`
	Critical   bool     `json:"critical"`
	Flagged    bool     `json:"flagged"`
	Missing    bool     `json:"missing,omitempty"`
}

// Report is the full confidence assessment for one job.
type Report struct {
	JobID uuid.UUID `json:"job_id"`
	// Fields appear in schema order.
	Fields []FieldScore `json:"fields"`
	// Overall is the unweighted mean of critical-field confidences.
	Overall float64 `json:"overall"`
	// FlaggedCritical counts critical fields below the field threshold.
	FlaggedCritical int       `json:"flagged_critical"`
	LowRedundancy   bool      `json:"low_redundancy"`
	CreatedAt       time.Time `json:"created_at"`
}

// Score blends consensus agreement with rule validity into per-field
// confidence, then averages the critical fields into the overall score.
// A missing field scores zero on both axes.
func Score(jobID uuid.UUID, out consensus.Outcome, sch *schema.Schema, w Weights) Report {
	report := Report{
		JobID:         jobID,
		Fields:        make([]FieldScore, 0, len(sch.Fields)),
		LowRedundancy: out.LowRedundancy,
		CreatedAt:     time.Now().UTC(),
	}

	var criticalSum float64
	var criticalN int

	for i := range sch.Fields {
		spec := &sch.Fields[i]
		fc := out.Fields[spec.Name]

		var check RuleCheck
		if fc.Missing {
			check = ValidateField(spec, nil)
		} else {
			check = ValidateField(spec, fc.Value)
		}

		ruleScore := 0.0
		if check.Valid {
			ruleScore = 1.0
		}

		score := w.Agreement*fc.Agreement + w.Rule*ruleScore

		fs := FieldScore{
			Name:       spec.Name,
			Value:      fc.Value,
			Source:     fc.Source,
			Agreement:  fc.Agreement,
			RuleValid:  check.Valid,
			Reasons:    check.Reasons,
			Confidence: score,
			Critical:   spec.Critical,
			Flagged:    score < w.FieldThreshold,
			Missing:    fc.Missing,
		}
		report.Fields = append(report.Fields, fs)

		if spec.Critical {
			criticalSum += score
			criticalN++
			if fs.Flagged {
				report.FlaggedCritical++
			}
		}
	}

	if criticalN > 0 {
		report.Overall = criticalSum / float64(criticalN)
	}
	return report
}
