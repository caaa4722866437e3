// api/schemas/transcript.go
package schemas

import (
	"encoding/base64"
	encodingjson "encoding/json"
	"strings"

	json "github.com/json-iterator/go"
)

// -- Transcript Items --

// ItemType enumerates the kinds of entries that make up a session transcript.
// The transcript is the shared record exchanged with the model gateway: the
// agent appends what it did, the model appends what it wants done next.
type ItemType string

const (
	ItemMessage            ItemType = "message"              // A conversational message from the user or the model.
	ItemComputerCall       ItemType = "computer_call"        // A request from the model to perform one browser action.
	ItemComputerCallOutput ItemType = "computer_call_output" // The screenshot result the agent returns for a computer call.
	ItemReasoning          ItemType = "reasoning"            // An opaque reasoning trace emitted by some models.
)

// Role identifies the author of a message item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType identifies the flavour of a message content part.
type ContentType string

const (
	ContentInputText  ContentType = "input_text"  // Text supplied to the model.
	ContentOutputText ContentType = "output_text" // Text produced by the model.
	ContentInputImage ContentType = "input_image" // An image supplied to the model (data URL or remote).
)

// ContentPart is a single block inside a message item's content list.
type ContentPart struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
}

// SafetyCheck is a gate attached by the gateway to a computer call. Every
// pending check must be echoed back as acknowledged on the matching call
// output, otherwise the gateway refuses to continue the session.
type SafetyCheck struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ComputerOutput carries the screenshot payload of a computer_call_output
// item. The image travels inline as a base64 data URL.
type ComputerOutput struct {
	Type       ContentType `json:"type"`
	ImageURL   string      `json:"image_url"`
	CurrentURL string      `json:"current_url,omitempty"`
}

// Item is one entry of the transcript. It is a tagged union keyed on Type;
// only the fields relevant to the given type are populated. Items of a type
// this program does not model are still carried, verbatim, via Raw.
type Item struct {
	Type ItemType `json:"type"`
	ID   string   `json:"id,omitempty"`

	// Populated for message items.
	Role    Role          `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Populated for computer_call items.
	CallID              string        `json:"call_id,omitempty"`
	Action              *Action       `json:"action,omitempty"`
	PendingSafetyChecks []SafetyCheck `json:"pending_safety_checks,omitempty"`

	// Populated for computer_call_output items.
	AcknowledgedSafetyChecks []SafetyCheck   `json:"acknowledged_safety_checks,omitempty"`
	Output                   *ComputerOutput `json:"output,omitempty"`

	// Raw holds the exact bytes this item arrived with. Items received from
	// the gateway must be replayed byte for byte on the next request, so any
	// fields the struct above does not model survive the round trip.
	Raw encodingjson.RawMessage `json:"-"`
}

// itemAlias breaks the MarshalJSON/UnmarshalJSON recursion.
type itemAlias Item

// UnmarshalJSON decodes the known fields and retains the original bytes.
func (it *Item) UnmarshalJSON(data []byte) error {
	var a itemAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*it = Item(a)
	it.Raw = append(encodingjson.RawMessage(nil), data...)
	return nil
}

// MarshalJSON prefers the retained bytes so replayed items stay untouched.
// Items constructed locally have no Raw and are encoded from their fields.
func (it Item) MarshalJSON() ([]byte, error) {
	if len(it.Raw) > 0 {
		return it.Raw, nil
	}
	return json.Marshal(itemAlias(it))
}

// IsAssistantMessage reports whether the item is a message authored by the
// model. The session is finished when the newest transcript entry satisfies
// this and no computer call is left unanswered.
func (it Item) IsAssistantMessage() bool {
	return it.Type == ItemMessage && it.Role == RoleAssistant
}

// MessageText flattens the text content of a message item. Non-text parts
// are skipped.
func (it Item) MessageText() string {
	if it.Type != ItemMessage {
		return ""
	}
	var b strings.Builder
	for _, part := range it.Content {
		if part.Type == ContentInputText || part.Type == ContentOutputText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// NewUserMessage builds the transcript item a session opens with.
func NewUserMessage(text string) Item {
	return Item{
		Type: ItemMessage,
		Role: RoleUser,
		Content: []ContentPart{
			{Type: ContentInputText, Text: text},
		},
	}
}

// NewComputerCallOutput pairs a screenshot with the computer call that asked
// for it. The pending safety checks of the call are echoed as acknowledged.
func NewComputerCallOutput(callID string, acknowledged []SafetyCheck, imageDataURL, currentURL string) Item {
	return Item{
		Type:                     ItemComputerCallOutput,
		CallID:                   callID,
		AcknowledgedSafetyChecks: acknowledged,
		Output: &ComputerOutput{
			Type:       ContentInputImage,
			ImageURL:   imageDataURL,
			CurrentURL: currentURL,
		},
	}
}

// Snapshot is the observation the browser hands back after every action: the
// rendered viewport and the address it was captured at.
type Snapshot struct {
	PNG []byte
	URL string
}

// DataURL renders the screenshot as an inline base64 image, the only form
// the gateway accepts inside a computer call output.
func (s Snapshot) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(s.PNG)
}
