package models

// AgentKind identifies the vendor family a registered adapter belongs to. The
// set is open-ended: a fixed catalog of known vendors plus an arbitrary string
// for anything discovered by the skill ecosystem that isn't one of them.
type AgentKind string

const (
	ClaudeCode AgentKind = "claude_code"
	Codex      AgentKind = "codex"
	Copilot    AgentKind = "copilot"
	Cursor     AgentKind = "cursor"
	Goose      AgentKind = "goose"
	OpenCode   AgentKind = "opencode"
)

// knownOrder fixes the declaration order used for total ordering/display.
var knownOrder = []AgentKind{ClaudeCode, Codex, Copilot, Cursor, Goose, OpenCode}

// IsKnown reports whether k is one of the fixed catalog entries.
func (k AgentKind) IsKnown() bool {
	for _, v := range knownOrder {
		if v == k {
			return true
		}
	}
	return false
}

// Rank returns the declaration-order position of k among the known kinds, or
// len(knownOrder) for any open-ended/custom kind (sorts after all known kinds).
func (k AgentKind) Rank() int {
	for i, v := range knownOrder {
		if v == k {
			return i
		}
	}
	return len(knownOrder)
}

func (k AgentKind) String() string { return string(k) }
