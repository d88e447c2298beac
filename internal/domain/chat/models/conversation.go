package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnStreaming TurnStatus = "streaming"
	TurnComplete  TurnStatus = "complete"
	TurnCancelled TurnStatus = "cancelled"
	TurnFailed    TurnStatus = "failed"
)

type FragmentKind string

const (
	FragmentText       FragmentKind = "text"
	FragmentAttachment FragmentKind = "attachment"
)

// Fragment is one piece of a turn's content. Attachment fragments carry the
// source filename so the model can attribute extracted text to its file.
type Fragment struct {
	Kind   FragmentKind `json:"kind"`
	Text   string       `json:"text"`
	Source string       `json:"source,omitempty"`
}

// Turn is one message within a conversation. Assistant turns additionally
// carry the reasoning trace emitted by reasoning-capable models.
type Turn struct {
	ID          uuid.UUID  `json:"id"`
	Role        Role       `json:"role"`
	Status      TurnStatus `json:"status"`
	Pinned      bool       `json:"pinned,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Fragments   []Fragment `json:"fragments"`
	// Attachments holds the upload metadata for user turns, including each
	// file's extraction status.
	Attachments []Attachment `json:"attachments,omitempty"`
	Reasoning   string       `json:"reasoning,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewTurn creates a turn in pending state.
func NewTurn(role Role) *Turn {
	return &Turn{
		ID:        uuid.New(),
		Role:      role,
		Status:    TurnPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Text joins the turn's text fragments. Attachment fragments are excluded;
// rendering them with delimiters is the context assembler's job.
func (t *Turn) Text() string {
	var parts []string
	for _, f := range t.Fragments {
		if f.Kind == FragmentText && f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// AppendText extends the trailing text fragment, creating one if the turn has
// none. Streaming deltas for assistant turns land here.
func (t *Turn) AppendText(delta string) {
	if delta == "" {
		return
	}
	if n := len(t.Fragments); n > 0 && t.Fragments[n-1].Kind == FragmentText {
		t.Fragments[n-1].Text += delta
		return
	}
	t.Fragments = append(t.Fragments, Fragment{Kind: FragmentText, Text: delta})
}

// Terminal reports whether the turn has reached a final state.
func (t *Turn) Terminal() bool {
	switch t.Status {
	case TurnComplete, TurnCancelled, TurnFailed:
		return true
	}
	return false
}

// Clone returns a deep copy, used by stores so persisted snapshots are not
// aliased to live turns still being mutated by the relay.
func (t *Turn) Clone() *Turn {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Fragments = append([]Fragment(nil), t.Fragments...)
	cp.Attachments = append([]Attachment(nil), t.Attachments...)
	return &cp
}

// Conversation holds an ordered sequence of turns. At most one turn may be
// in flight at a time; the command dispatcher enforces this.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Title     string    `json:"title"`
	Turns     []*Turn   `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

func NewConversation(ownerID, title string) *Conversation {
	return &Conversation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
}

func (c *Conversation) LastTurn() *Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	return c.Turns[len(c.Turns)-1]
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Turns = make([]*Turn, len(c.Turns))
	for i, t := range c.Turns {
		cp.Turns[i] = t.Clone()
	}
	return &cp
}
