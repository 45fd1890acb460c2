package events

import "time"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvCompiled        EventType = iota // An expression resolved
	EvDiagnostic                       // An expression failed to resolve
	EvScriptSaved                      // A script was created or replaced
	EvScriptDeleted                    // A script was removed
	EvGrammarReloaded                  // The grammar file changed
)

// String returns a name for the event type, used as the JSON "type" field.
func (t EventType) String() string {
	switch t {
	case EvCompiled:
		return "compiled"
	case EvDiagnostic:
		return "diagnostic"
	case EvScriptSaved:
		return "script_saved"
	case EvScriptDeleted:
		return "script_deleted"
	case EvGrammarReloaded:
		return "grammar_reloaded"
	default:
		return "unknown"
	}
}

// Event is a structured event that flows through the bus. WebSocket
// clients receive the structured data; log subscribers use Text.
type Event struct {
	Type   EventType
	Author string         // Recipient ("" for broadcast)
	Script string         // Script name, if the event concerns one
	Source string         // Expression source text
	Text   string         // One-line summary
	Data   map[string]any // Structured payload for JSON clients
	Time   time.Time
}
