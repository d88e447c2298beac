package assembler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
)

// bytesPerToken is the crude length-to-token estimate used for budgeting.
const bytesPerToken = 4

// perTurnOverhead covers role tags and message framing in the estimate.
const perTurnOverhead = 4

// continueInstruction tells the provider to extend the previous assistant
// turn in place. Mirrors the continuation prompt of the upstream product.
const continueInstruction = "Continue from exactly where the previous message stopped. " +
	"Output only the continuation: do not repeat anything already written and do not add filler like \"sure\" or \"continuing\"."

const emptyTurnPlaceholder = "[empty message or attachments only]"

// Service builds the outgoing upstream payload from conversation history, a
// pending user turn, and the ingestion results for its attachments.
type Service struct {
	budget int
}

func NewService(budget int) *Service {
	return &Service{budget: budget}
}

// MergeResults folds extraction results into the pending user turn as
// attachment fragments, one per attachment, in batch order. Failed and empty
// extractions become visible markers so the model knows content was missing.
func MergeResults(turn *models.Turn, results []models.ExtractionResult) {
	for _, res := range results {
		turn.Fragments = append(turn.Fragments, models.Fragment{
			Kind:   models.FragmentAttachment,
			Source: res.Name,
			Text:   renderResult(res),
		})
	}
}

func renderResult(res models.ExtractionResult) string {
	switch {
	case res.Failed():
		return fmt.Sprintf("[attachment %s could not be processed: %s]", res.Name, res.Err)
	case res.Empty:
		return fmt.Sprintf("[attachment %s: no recognizable text]", res.Name)
	default:
		return res.Text
	}
}

// Assemble produces the outgoing request for one directive.
//
// Modes:
//   - new-turn: append the pending user turn, include full eligible history.
//   - regenerate: drop the most recent assistant turn, reuse the preceding
//     history unchanged.
//   - continue: keep the most recent assistant turn as a prefix and instruct
//     the provider to extend it.
func (s *Service) Assemble(conv *models.Conversation, pending *models.Turn, mode models.AssemblyMode, model string) (models.OutgoingRequest, error) {
	req := models.OutgoingRequest{Model: model}

	history := make([]*models.Turn, 0, len(conv.Turns)+2)
	history = append(history, conv.Turns...)

	switch mode {
	case models.ModeNewTurn:
		if pending != nil {
			history = append(history, pending)
		}

	case models.ModeRegenerate:
		if last := lastTurn(history); last != nil && last.Role == models.RoleAssistant {
			history = history[:len(history)-1]
		}

	case models.ModeContinue:
		req.Continuation = true
		instruction := &models.Turn{
			Role:      models.RoleUser,
			Status:    models.TurnComplete,
			Fragments: []models.Fragment{{Kind: models.FragmentText, Text: continueInstruction}},
		}
		history = append(history, instruction)
	}

	messages, err := s.truncate(history)
	if err != nil {
		return models.OutgoingRequest{}, err
	}

	req.Messages = messages
	log.Debug().
		Str("mode", string(mode)).
		Int("history_turns", len(history)).
		Int("messages", len(messages)).
		Msg("Assembled outgoing request")

	return req, nil
}

// truncate enforces the token budget. Turns are dropped whole, oldest first;
// pinned and system turns are never dropped. BudgetExhausted is returned only
// when the most recent turn alone does not fit alongside the pinned set.
func (s *Service) truncate(history []*models.Turn) ([]models.OutgoingMessage, error) {
	type entry struct {
		turn *models.Turn
		cost int
	}

	entries := make([]entry, 0, len(history))
	pinnedCost := 0
	for _, t := range history {
		cost := estimateTokens(RenderTurn(t))
		entries = append(entries, entry{turn: t, cost: cost})
		if protected(t) {
			pinnedCost += cost
		}
	}

	if len(entries) == 0 {
		return nil, nil
	}

	newest := entries[len(entries)-1]
	if !protected(newest.turn) && newest.cost > s.budget {
		return nil, chat.ErrBudgetExhausted
	}

	// Walk oldest-first, dropping unprotected turns until the remainder fits.
	remaining := pinnedCost
	for _, e := range entries {
		if !protected(e.turn) {
			remaining += e.cost
		}
	}

	dropped := make(map[*models.Turn]bool)
	for _, e := range entries[:len(entries)-1] {
		if remaining <= s.budget {
			break
		}
		if protected(e.turn) {
			continue
		}
		dropped[e.turn] = true
		remaining -= e.cost
	}

	if len(dropped) > 0 {
		log.Info().Int("dropped_turns", len(dropped)).Msg("History truncated to fit context budget")
	}

	messages := make([]models.OutgoingMessage, 0, len(entries))
	for _, e := range entries {
		if dropped[e.turn] {
			continue
		}
		messages = append(messages, models.OutgoingMessage{
			Role:    string(e.turn.Role),
			Content: RenderTurn(e.turn),
		})
	}
	return messages, nil
}

func protected(t *models.Turn) bool {
	return t.Pinned || t.Role == models.RoleSystem
}

func lastTurn(history []*models.Turn) *models.Turn {
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1]
}

func estimateTokens(content string) int {
	return len(content)/bytesPerToken + perTurnOverhead
}

// RenderTurn flattens a turn's fragments into one message body. Attachment
// fragments are wrapped in delimiters naming their source file.
func RenderTurn(t *models.Turn) string {
	var b strings.Builder
	for _, f := range t.Fragments {
		switch f.Kind {
		case models.FragmentAttachment:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "--- attachment [%s] ---\n%s\n--- end ---", f.Source, f.Text)
		default:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(f.Text)
		}
	}

	if strings.TrimSpace(b.String()) == "" {
		return emptyTurnPlaceholder
	}
	return b.String()
}
