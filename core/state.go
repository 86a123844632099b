package core

// State is the lifecycle state of a research agent.
type State string

const (
	// StateInited is entered at construction, before the first step.
	StateInited State = "inited"
	// StateResearching means the reasoning loop is actively stepping.
	StateResearching State = "researching"
	// StateWaitingClarification means the loop is parked until the caller
	// resumes it with clarification text.
	StateWaitingClarification State = "waiting_for_clarification"
	// StateCompleted is terminal: the task finished with a report.
	StateCompleted State = "completed"
	// StateFailed is terminal: retries were exhausted or the stream broke
	// beyond recovery.
	StateFailed State = "failed"
)

// Terminal reports whether no further steps are accepted in this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// String returns the wire representation of the state.
func (s State) String() string { return string(s) }
