// internal/agent/transcript.go
package agent

import (
	"strings"
	"sync"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Transcript is the ordered exchange with the model gateway. It only grows:
// items are never reordered or rewritten, because the gateway replays the
// whole sequence on every round trip and rejects a history that changed
// shape between calls.
type Transcript struct {
	mu    sync.Mutex
	items []schemas.Item
}

// Append adds items to the end of the transcript.
func (t *Transcript) Append(items ...schemas.Item) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, items...)
}

// Items returns a copy of the transcript in order.
func (t *Transcript) Items() []schemas.Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]schemas.Item(nil), t.items...)
}

// Last returns the newest item, if any.
func (t *Transcript) Last() (schemas.Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return schemas.Item{}, false
	}
	return t.items[len(t.items)-1], true
}

// Len reports the number of items appended so far.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// SessionLog is the human readable trace of a run, one line per event. The
// line vocabulary is fixed ("Navigated to", "Agent:", "Action:", "Error:",
// "Final URL:") so downstream consumers can grep for what happened.
type SessionLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *SessionLog) append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

// Opened records the navigation a run starts with.
func (l *SessionLog) Opened(url string) { l.append("Navigated to " + url) }

// AgentSaid records a free text message from the model.
func (l *SessionLog) AgentSaid(text string) { l.append("Agent: " + text) }

// ActionTaken records one executed browser action.
func (l *SessionLog) ActionTaken(summary string) { l.append("Action: " + summary) }

// Failed records the error that ended the run.
func (l *SessionLog) Failed(err error) { l.append("Error: " + err.Error()) }

// Closed records the address the run ended on.
func (l *SessionLog) Closed(url string) { l.append("Final URL: " + url) }

// Lines returns a copy of the log in order.
func (l *SessionLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// String joins the log with newlines.
func (l *SessionLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}
