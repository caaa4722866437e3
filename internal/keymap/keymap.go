// internal/keymap/keymap.go

// Package keymap translates the key names used by computer use models into
// the DOM key values the Chrome DevTools Protocol understands.
package keymap

import "strings"

// nativeKeys maps model side key aliases (always matched lowercase) to their
// DOM KeyboardEvent.key values. Names absent from the table pass through
// unchanged, which already covers printable characters and properly cased
// DOM names like "F5".
var nativeKeys = map[string]string{
	"enter":      "Enter",
	"tab":        "Tab",
	"space":      " ",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"esc":        "Escape",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
	"shift":      "Shift",
	"ctrl":       "Control",
	"alt":        "Alt",
	"cmd":        "Meta",
	"win":        "Meta",
	"super":      "Meta",
	"option":     "Alt",
}

// Native resolves a single model key name to its DOM key value.
func Native(key string) string {
	if mapped, ok := nativeKeys[strings.ToLower(key)]; ok {
		return mapped
	}
	return key
}

// NativeAll resolves a chord of key names, preserving order.
func NativeAll(keys []string) []string {
	mapped := make([]string, len(keys))
	for i, key := range keys {
		mapped[i] = Native(key)
	}
	return mapped
}
