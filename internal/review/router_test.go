package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/confidence"
)

func TestRoute(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		report  confidence.Report
		want    constants.RoutingDecision
		reasons int
	}{
		{
			name:   "high confidence no flags",
			report: confidence.Report{Overall: 0.92},
			want:   constants.RouteAutomated,
		},
		{
			name:   "exactly at threshold",
			report: confidence.Report{Overall: 0.85},
			want:   constants.RouteAutomated,
		},
		{
			name:    "just under threshold",
			report:  confidence.Report{Overall: 0.849999},
			want:    constants.RouteManualReview,
			reasons: 1,
		},
		{
			name:    "high overall but flagged critical",
			report:  confidence.Report{Overall: 0.95, FlaggedCritical: 1},
			want:    constants.RouteManualReview,
			reasons: 1,
		},
		{
			name:    "low overall and flagged",
			report:  confidence.Report{Overall: 0.4, FlaggedCritical: 3},
			want:    constants.RouteManualReview,
			reasons: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Route(tt.report)
			assert.Equal(t, tt.want, v.Decision)
			assert.Len(t, v.Reasons, tt.reasons)
		})
	}
}
