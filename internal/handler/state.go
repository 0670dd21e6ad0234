package handler

// State is the Assistant Handler's lifecycle state, per spec.md §4.1:
// Idle -> Starting -> Running -> Processing <-> Running -> Terminating
// -> Terminated, with any state able to fall into Error, and Error
// always draining into Terminated after cleanup.
type State string

const (
	StateIdle        State = "idle"
	StateStarting    State = "starting"
	StateRunning     State = "running"
	StateProcessing  State = "processing"
	StateTerminating State = "terminating"
	StateTerminated  State = "terminated"
	StateError       State = "error"
)

// OutputFormat selects how the subprocess's stdout is framed.
type OutputFormat string

const (
	FormatText       OutputFormat = "text"
	FormatJSON       OutputFormat = "json"
	FormatStreamJSON OutputFormat = "stream-json"
)
