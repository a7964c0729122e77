package tui

import "strings"

// Binding is one key and its footer hint.
type Binding struct {
	Key  string
	Help string
}

// KeyBindings lists the keys handled by the terminal before the send line
// sees them, in the order they appear in the help line.
var KeyBindings = []Binding{
	{"enter", "send"},
	{"ctrl+x", "hex"},
	{"ctrl+n", "newline"},
	{"ctrl+l", "clear"},
	{"ctrl+g", "chart"},
	{"ctrl+o", "lines"},
	{"ctrl+r", "rts"},
	{"ctrl+t", "dtr"},
	{"ctrl+b", "break"},
	{"ctrl+d", "detach"},
	{"ctrl+z", "suspend"},
	{"pgup", "scroll"},
	{"pgdown", "scroll"},
	{"ctrl+c", "quit"},
}

// IsGlobalKey reports whether key is handled by the terminal rather than
// the send line.
func IsGlobalKey(key string) bool {
	for _, b := range KeyBindings {
		if b.Key == key {
			return true
		}
	}
	return false
}

// HelpLine returns the key hints as a single line.
func HelpLine() string {
	parts := make([]string, 0, len(KeyBindings))
	for _, b := range KeyBindings {
		if b.Key == "pgdown" {
			continue
		}
		key := strings.TrimPrefix(b.Key, "ctrl+")
		if key != b.Key {
			key = "^" + strings.ToUpper(key)
		}
		parts = append(parts, key+":"+b.Help)
	}
	return strings.Join(parts, "  ")
}
