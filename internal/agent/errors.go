// internal/agent/errors.go
package agent

import "errors"

// Session construction errors. Driver and gateway failures keep their own
// identities (browser.Err*, llmclient.Err*) and pass through Run unwrapped,
// so callers can classify every terminal error with errors.Is.
var (
	// ErrTaskEmpty rejects a task whose goal text is blank.
	ErrTaskEmpty = errors.New("task goal is empty")

	// ErrBadStartURL rejects an opening address that is not absolute http(s).
	ErrBadStartURL = errors.New("start url must be an absolute http(s) address")

	// ErrNegativeBudget rejects a step budget below zero. Zero is legal and
	// ends the run before the first gateway call.
	ErrNegativeBudget = errors.New("step budget must not be negative")
)

// ReasonBudgetExhausted is recorded on a run that spent its whole step
// budget without the model delivering a final answer. Not an error: the
// partial log is still a valid result.
const ReasonBudgetExhausted = "step budget exhausted"
