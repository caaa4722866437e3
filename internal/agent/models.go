// internal/agent/models.go
package agent

import "strings"

// SessionState tracks where a session is in its lifecycle. Transitions run
// strictly forward: Starting enters Stepping once the opening page is up,
// and Stepping ends in exactly one of the two terminal states.
type SessionState string

const (
	StateStarting SessionState = "STARTING" // The browser is opening the start page; nothing sent to the gateway yet.
	StateStepping SessionState = "STEPPING" // The session is exchanging steps with the gateway.
	StateFinished SessionState = "FINISHED" // The model closed the task with a final answer.
	StateAborted  SessionState = "ABORTED"  // The run ended without one: budget spent, cancelled, or failed.
)

// Task describes one browsing assignment.
type Task struct {
	ID       string `json:"id"`                  // Correlates log output across components. Generated when empty.
	Goal     string `json:"goal"`                // The instruction handed to the model verbatim.
	StartURL string `json:"start_url,omitempty"` // Opening page. Empty selects the configured default.
}

// Result is the outcome of a run. Run always returns one, even on error, so
// the caller can show the log accumulated up to the failure.
type Result struct {
	TaskID   string       `json:"task_id"`
	State    SessionState `json:"state"`
	Reason   string       `json:"reason,omitempty"`    // Why an aborted run ended.
	Steps    int          `json:"steps"`               // Gateway round trips consumed.
	FinalURL string       `json:"final_url,omitempty"` // Address of the active page when the run ended.
	Log      []string     `json:"log"`                 // The human readable trace, in order.
}

// Text renders the session log as the newline joined block handed to callers.
func (r *Result) Text() string {
	return strings.Join(r.Log, "\n")
}
