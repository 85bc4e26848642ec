package constants

// Outcome classifies a single provider call. Exactly one per
// (job, provider, attempt); failures are results, not errors.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeTimeout   Outcome = "TIMEOUT"
	OutcomeError     Outcome = "ERROR"
	OutcomeMalformed Outcome = "MALFORMED"
)

// IsFailure reports whether the outcome counts against a provider's
// circuit breaker.
func (o Outcome) IsFailure() bool {
	return o == OutcomeTimeout || o == OutcomeError || o == OutcomeMalformed
}

// CircuitState is the admission-control state of a provider.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)
