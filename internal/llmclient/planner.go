// internal/llmclient/planner.go

// Package llmclient talks to the model gateway that plans browser actions.
// Each provider maps the session transcript onto its own wire format and
// maps the reply back into transcript items; the loop never sees provider
// specifics.
package llmclient

import (
	"context"
	"errors"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

var (
	// ErrGateway indicates the gateway rejected the request or returned an
	// unusable response. The session treats it as fatal; there are no retries
	// because replaying a computer use exchange can replay its side effects.
	ErrGateway = errors.New("model gateway request failed")
	// ErrGatewayTimeout indicates the request exceeded the configured
	// request_timeout before the gateway answered.
	ErrGatewayTimeout = errors.New("model gateway request timed out")
)

// Planner produces the next transcript items for a session. Propose sends
// the full transcript so far and returns what the model appended: messages,
// reasoning traces, or computer calls to execute.
type Planner interface {
	Propose(ctx context.Context, transcript []schemas.Item) ([]schemas.Item, error)

	// Close releases connections held by the client. Safe to call once the
	// session is over.
	Close() error
}
