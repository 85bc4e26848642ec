package constants

// JobState is the canonical lifecycle state for an extraction job.
type JobState string

// Stable values (store these exact strings in the ledger).
const (
	JobStateSubmitted   JobState = "SUBMITTED"   // accepted, waiting for a worker
	JobStateNormalizing JobState = "NORMALIZING" // document bytes -> normalized text/images
	JobStateExtracting  JobState = "EXTRACTING"  // provider fan-out in flight
	JobStateConsensing  JobState = "CONSENSING"  // merging provider field maps
	JobStateScoring     JobState = "SCORING"     // confidence + rule validation
	JobStateRouted      JobState = "ROUTED"      // routing decision recorded
	JobStateCompleted   JobState = "COMPLETED"   // terminal success
	JobStateFailed      JobState = "FAILED"      // terminal failure, see FailureReason
)

// FailureReason is the stable, enumerable reason attached to FAILED jobs.
// Callers never see a raw adapter fault, only one of these.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonUnreadableDocument   FailureReason = "UNREADABLE_DOCUMENT"
	ReasonNoProvidersAvailable FailureReason = "NO_PROVIDERS_AVAILABLE"
	ReasonCancelled            FailureReason = "CANCELLED"
	ReasonInternal             FailureReason = "INTERNAL"
)

// RoutingDecision is the outcome of the review router.
type RoutingDecision string

const (
	RouteAutomated    RoutingDecision = "AUTOMATED"
	RouteManualReview RoutingDecision = "MANUAL_REVIEW"
)

// IsTerminal reports whether a job in the given state can never move again.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}
