// api/schemas/actions.go
package schemas

import (
	"fmt"
	"strings"
)

// -- Browser Actions --

// ActionType enumerates the browser actions the model may request. The set
// mirrors the computer use tool contract; verbs outside it are rejected by
// the driver rather than silently ignored.
type ActionType string

const (
	ActionClick       ActionType = "click"        // Press and release a mouse button at a coordinate.
	ActionDoubleClick ActionType = "double_click" // Two rapid clicks at a coordinate.
	ActionDrag        ActionType = "drag"         // Hold the left button down along a path of points.
	ActionKeypress    ActionType = "keypress"     // Press a chord of named keys, releasing in reverse order.
	ActionMove        ActionType = "move"         // Move the pointer without pressing anything.
	ActionScreenshot  ActionType = "screenshot"   // Request a fresh screenshot without side effects.
	ActionScroll      ActionType = "scroll"       // Scroll the document by a pixel delta.
	ActionTypeText    ActionType = "type"         // Type a string of text as keyboard input.
	ActionWait        ActionType = "wait"         // Pause briefly to let the page settle.
	ActionNavigate    ActionType = "navigate"     // Load a URL in the active page.
	ActionBack        ActionType = "back"         // Go back one entry in the page history.
	ActionForward     ActionType = "forward"      // Go forward one entry in the page history.
)

// MouseButton names the button of a click action. Back, forward and wheel
// are not real buttons here: the driver translates them into history
// navigation and wheel scrolling respectively.
type MouseButton string

const (
	ButtonLeft    MouseButton = "left"
	ButtonRight   MouseButton = "right"
	ButtonWheel   MouseButton = "wheel"
	ButtonBack    MouseButton = "back"
	ButtonForward MouseButton = "forward"
)

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is the argument payload of a computer_call item. Like Item it is a
// tagged union on Type; unused fields stay at their zero value.
type Action struct {
	Type ActionType `json:"type"`

	// Coordinates for click, double_click, move and scroll.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// Button for click actions. Empty means left.
	Button MouseButton `json:"button,omitempty"`

	// Pixel deltas for scroll actions. Positive values scroll right and down.
	ScrollX int `json:"scroll_x,omitempty"`
	ScrollY int `json:"scroll_y,omitempty"`

	// Text for type actions.
	Text string `json:"text,omitempty"`

	// Keys for keypress actions, in press order.
	Keys []string `json:"keys,omitempty"`

	// Path for drag actions, in traversal order. The first point is where
	// the button goes down, the last where it comes up.
	Path []Point `json:"path,omitempty"`

	// URL for navigate actions.
	URL string `json:"url,omitempty"`
}

// Summary renders the action for the human readable session log, e.g.
// "click(x=114, y=212, button=left)". The output is stable so transcripts
// can be compared across runs.
func (a Action) Summary() string {
	switch a.Type {
	case ActionClick:
		button := a.Button
		if button == "" {
			button = ButtonLeft
		}
		return fmt.Sprintf("click(x=%d, y=%d, button=%s)", a.X, a.Y, button)
	case ActionDoubleClick:
		return fmt.Sprintf("double_click(x=%d, y=%d)", a.X, a.Y)
	case ActionDrag:
		points := make([]string, 0, len(a.Path))
		for _, p := range a.Path {
			points = append(points, fmt.Sprintf("(%d, %d)", p.X, p.Y))
		}
		return fmt.Sprintf("drag(path=[%s])", strings.Join(points, ", "))
	case ActionKeypress:
		return fmt.Sprintf("keypress(keys=[%s])", strings.Join(a.Keys, ", "))
	case ActionMove:
		return fmt.Sprintf("move(x=%d, y=%d)", a.X, a.Y)
	case ActionScroll:
		return fmt.Sprintf("scroll(x=%d, y=%d, scroll_x=%d, scroll_y=%d)", a.X, a.Y, a.ScrollX, a.ScrollY)
	case ActionTypeText:
		return fmt.Sprintf("type(text=%q)", a.Text)
	case ActionNavigate:
		return fmt.Sprintf("navigate(url=%s)", a.URL)
	case ActionScreenshot, ActionWait, ActionBack, ActionForward:
		return fmt.Sprintf("%s()", a.Type)
	default:
		return fmt.Sprintf("%s()", a.Type)
	}
}
