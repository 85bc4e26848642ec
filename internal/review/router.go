// Package review holds the routing policy: given a confidence report,
// decide whether a job's output is trusted for automated processing or
// goes to a human. Keeping the policy in one place means the threshold
// is changed here and nowhere else.
package review

import (
	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/confidence"
)

// Policy is the automation gate.
type Policy struct {
	// AutomatedThreshold is the minimum overall confidence for
	// automated processing.
	AutomatedThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{AutomatedThreshold: 0.85}
}

// Verdict is the routing outcome plus the reasons a job was held for
// review, for the reviewer's benefit.
type Verdict struct {
	Decision constants.RoutingDecision `json:"decision"`
	Reasons  []string                  `json:"reasons,omitempty"`
}

// Route applies the policy to a scored report. Automation requires the
// overall confidence at or above the threshold AND no flagged critical
// field; everything else is manual review. The decision is never made
// anywhere else in the pipeline.
func (p Policy) Route(report confidence.Report) Verdict {
	var reasons []string
	if report.Overall < p.AutomatedThreshold {
		reasons = append(reasons, "overall confidence below threshold")
	}
	if report.FlaggedCritical > 0 {
		reasons = append(reasons, "critical field flagged")
	}
	if len(reasons) > 0 {
		return Verdict{Decision: constants.RouteManualReview, Reasons: reasons}
	}
	return Verdict{Decision: constants.RouteAutomated}
}
