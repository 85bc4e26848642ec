package orchestrator

import (
	"fmt"

	"github.com/freightflow/extractd/constants"
)

// validTransitions is the job lifecycle. EXTRACTING loops on itself for
// retries; every non-terminal state may fail.
var validTransitions = map[constants.JobState][]constants.JobState{
	constants.JobStateSubmitted:   {constants.JobStateNormalizing, constants.JobStateFailed},
	constants.JobStateNormalizing: {constants.JobStateExtracting, constants.JobStateFailed},
	constants.JobStateExtracting:  {constants.JobStateExtracting, constants.JobStateConsensing, constants.JobStateFailed},
	constants.JobStateConsensing:  {constants.JobStateScoring, constants.JobStateFailed},
	constants.JobStateScoring:     {constants.JobStateRouted, constants.JobStateFailed},
	constants.JobStateRouted:      {constants.JobStateCompleted, constants.JobStateFailed},
	constants.JobStateCompleted:   {},
	constants.JobStateFailed:      {},
}

// ValidateTransition checks whether a job may move from one state to
// another.
func ValidateTransition(from, to constants.JobState) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown job state: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
