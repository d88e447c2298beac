package models

type AssemblyMode string

const (
	ModeNewTurn    AssemblyMode = "new-turn"
	ModeRegenerate AssemblyMode = "regenerate"
	ModeContinue   AssemblyMode = "continue"
)

// OutgoingMessage is one role-tagged message in the payload sent upstream.
type OutgoingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OutgoingRequest is the assembled payload for one upstream completion call.
// Continuation is set when the provider should extend the previous assistant
// turn rather than restart.
type OutgoingRequest struct {
	Model        string            `json:"model"`
	Messages     []OutgoingMessage `json:"messages"`
	Continuation bool              `json:"continuation,omitempty"`
}
