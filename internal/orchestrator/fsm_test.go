package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/freightflow/extractd/constants"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to constants.JobState
		ok       bool
	}{
		{constants.JobStateSubmitted, constants.JobStateNormalizing, true},
		{constants.JobStateSubmitted, constants.JobStateFailed, true},
		{constants.JobStateSubmitted, constants.JobStateExtracting, false},
		{constants.JobStateNormalizing, constants.JobStateExtracting, true},
		{constants.JobStateNormalizing, constants.JobStateScoring, false},
		{constants.JobStateExtracting, constants.JobStateExtracting, true},
		{constants.JobStateExtracting, constants.JobStateConsensing, true},
		{constants.JobStateConsensing, constants.JobStateScoring, true},
		{constants.JobStateScoring, constants.JobStateRouted, true},
		{constants.JobStateRouted, constants.JobStateCompleted, true},
		{constants.JobStateRouted, constants.JobStateSubmitted, false},
		{constants.JobStateCompleted, constants.JobStateFailed, false},
		{constants.JobStateFailed, constants.JobStateSubmitted, false},
		{"BOGUS", constants.JobStateFailed, false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.Error(t, err, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestBackoff(t *testing.T) {
	const base, ceiling = 2 * time.Second, 30 * time.Second

	var prev int64
	for n := 1; n <= 8; n++ {
		d := backoff(n, base, ceiling)
		// never below the pre-jitter floor for this attempt
		floor := int64(base)
		for i := 1; i < n; i++ {
			floor *= 2
			if floor >= int64(ceiling) {
				floor = int64(ceiling)
				break
			}
		}
		assert.GreaterOrEqual(t, int64(d), floor, "attempt %d", n)
		// jitter never exceeds 25% of the capped delay
		assert.LessOrEqual(t, int64(d), floor+floor/4+1, "attempt %d", n)
		// the floor is non-decreasing
		assert.GreaterOrEqual(t, floor, prev)
		prev = floor
	}
}
