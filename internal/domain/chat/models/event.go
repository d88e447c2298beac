package models

type EventType string

const (
	EventDeltaReasoning EventType = "delta-reasoning"
	EventDeltaAnswer    EventType = "delta-answer"
	EventError          EventType = "error"
	EventDone           EventType = "done"
)

// StreamEvent is one item on a turn's downstream event stream. Sequence
// numbers are scoped to the turn, strictly increasing and gap-free; exactly
// one done or error event closes the stream.
type StreamEvent struct {
	Type      EventType `json:"type"`
	Seq       uint64    `json:"seq"`
	Content   string    `json:"content,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Turn      *Turn     `json:"turn,omitempty"`
}

// IsTerminal reports whether the event closes the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
