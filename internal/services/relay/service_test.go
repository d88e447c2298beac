package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/domain/chat/models"
)

type scriptedStream struct {
	ctx    context.Context
	deltas []Delta
	final  error

	mu  sync.Mutex
	pos int
}

func (s *scriptedStream) Recv() (Delta, error) {
	s.mu.Lock()
	pos := s.pos
	s.pos++
	s.mu.Unlock()

	if pos < len(s.deltas) {
		return s.deltas[pos], nil
	}
	if s.final != nil {
		return Delta{}, s.final
	}
	// Script exhausted with no final error: behave like an upstream that
	// stays open until the request is cancelled.
	<-s.ctx.Done()
	return Delta{}, s.ctx.Err()
}

func (s *scriptedStream) Close() error { return nil }

type fakeStreamer struct {
	deltas  []Delta
	final   error
	openErr error
}

func (f *fakeStreamer) StreamCompletion(ctx context.Context, _ models.OutgoingRequest, _ string) (DeltaStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &scriptedStream{ctx: ctx, deltas: f.deltas, final: f.final}, nil
}

type fakeSaver struct {
	mu    sync.Mutex
	saves []*models.Turn
}

func (f *fakeSaver) SaveTurn(_ context.Context, _ uuid.UUID, turn *models.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, turn.Clone())
	return nil
}

func (f *fakeSaver) saved() []*models.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func collect(t *testing.T, events <-chan models.StreamEvent, done <-chan struct{}) []models.StreamEvent {
	t.Helper()
	var out []models.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				<-done
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("Timed out waiting for stream events")
		}
	}
}

func checkSequence(t *testing.T, events []models.StreamEvent) {
	t.Helper()
	for i, ev := range events {
		if ev.Seq != uint64(i) {
			t.Errorf("Event %d has sequence %d, want gap-free numbering", i, ev.Seq)
		}
	}
	terminals := 0
	for _, ev := range events {
		if ev.IsTerminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("Expected exactly one terminal event, got %d", terminals)
	}
	if len(events) > 0 && !events[len(events)-1].IsTerminal() {
		t.Error("Terminal event must come last")
	}
}

func TestStreamCompletes(t *testing.T) {
	streamer := &fakeStreamer{
		deltas: []Delta{
			{Reasoning: "thinking... "},
			{Reasoning: "done thinking."},
			{Answer: "Hello"},
			{Answer: ", world"},
		},
		final: io.EOF,
	}
	saver := &fakeSaver{}
	svc := NewService(streamer, saver)

	turn := models.NewTurn(models.RoleAssistant)
	events, done := svc.Stream(context.Background(), uuid.New(), turn, models.OutgoingRequest{}, "")
	got := collect(t, events, done)

	checkSequence(t, got)
	if len(got) != 5 {
		t.Fatalf("Expected 4 deltas + done, got %d events", len(got))
	}
	last := got[len(got)-1]
	if last.Type != models.EventDone || last.Cancelled {
		t.Errorf("Expected clean done event, got %+v", last)
	}

	if turn.Status != models.TurnComplete {
		t.Errorf("Expected complete status, got %s", turn.Status)
	}
	if turn.Text() != "Hello, world" {
		t.Errorf("Unexpected answer content %q", turn.Text())
	}
	if turn.Reasoning != "thinking... done thinking." {
		t.Errorf("Unexpected reasoning trace %q", turn.Reasoning)
	}

	saves := saver.saved()
	if len(saves) != 1 {
		t.Fatalf("Expected exactly one terminal persistence, got %d", len(saves))
	}
	if saves[0].Status != models.TurnComplete {
		t.Errorf("Persisted status %s, want complete", saves[0].Status)
	}
}

// send then stop after 3 answer deltas: the persisted turn holds exactly
// those 3 deltas' content, status cancelled, and the done event is flagged.
func TestStreamStopMidway(t *testing.T) {
	streamer := &fakeStreamer{
		deltas: []Delta{
			{Answer: "one "},
			{Answer: "two "},
			{Answer: "three"},
		},
		// No final error: upstream hangs until cancelled.
	}
	saver := &fakeSaver{}
	svc := NewService(streamer, saver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	turn := models.NewTurn(models.RoleAssistant)
	events, done := svc.Stream(ctx, uuid.New(), turn, models.OutgoingRequest{}, "")

	var got []models.StreamEvent
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for delta")
		}
	}
	cancel()
	got = append(got, collect(t, events, done)...)

	checkSequence(t, got)
	last := got[len(got)-1]
	if last.Type != models.EventDone || !last.Cancelled {
		t.Errorf("Expected cancelled done event, got %+v", last)
	}

	if turn.Status != models.TurnCancelled {
		t.Errorf("Expected cancelled status, got %s", turn.Status)
	}
	if turn.Text() != "one two three" {
		t.Errorf("Expected exactly the streamed content, got %q", turn.Text())
	}

	saves := saver.saved()
	if len(saves) != 1 || saves[0].Status != models.TurnCancelled {
		t.Fatalf("Expected one cancelled persistence, got %+v", saves)
	}
	if saves[0].Text() != "one two three" {
		t.Errorf("Persisted partial content %q", saves[0].Text())
	}
}

func TestStreamUpstreamFailure(t *testing.T) {
	streamer := &fakeStreamer{
		deltas: []Delta{{Answer: "partial"}},
		final:  errors.New("upstream 502"),
	}
	saver := &fakeSaver{}
	svc := NewService(streamer, saver)

	turn := models.NewTurn(models.RoleAssistant)
	events, done := svc.Stream(context.Background(), uuid.New(), turn, models.OutgoingRequest{}, "")
	got := collect(t, events, done)

	checkSequence(t, got)
	last := got[len(got)-1]
	if last.Type != models.EventError {
		t.Fatalf("Expected error event, got %+v", last)
	}
	if last.ErrorKind != "upstream_error" {
		t.Errorf("Expected upstream_error kind, got %q", last.ErrorKind)
	}

	if turn.Status != models.TurnFailed {
		t.Errorf("Expected failed status, got %s", turn.Status)
	}
	if turn.Text() != "partial" {
		t.Errorf("Partial content must be retained, got %q", turn.Text())
	}
	if saves := saver.saved(); len(saves) != 1 || saves[0].Status != models.TurnFailed {
		t.Fatalf("Expected one failed persistence, got %+v", saves)
	}
}

func TestStreamMalformedDelta(t *testing.T) {
	streamer := &fakeStreamer{
		final: &json.SyntaxError{Offset: 12},
	}
	saver := &fakeSaver{}
	svc := NewService(streamer, saver)

	turn := models.NewTurn(models.RoleAssistant)
	events, done := svc.Stream(context.Background(), uuid.New(), turn, models.OutgoingRequest{}, "")
	got := collect(t, events, done)

	if len(got) != 1 {
		t.Fatalf("Expected only the terminal event, got %d", len(got))
	}
	if got[0].Type != models.EventError || got[0].ErrorKind != "malformed_delta" {
		t.Errorf("Expected malformed_delta error event, got %+v", got[0])
	}
}

func TestStreamOpenFailure(t *testing.T) {
	streamer := &fakeStreamer{openErr: errors.New("connection refused")}
	saver := &fakeSaver{}
	svc := NewService(streamer, saver)

	turn := models.NewTurn(models.RoleAssistant)
	events, done := svc.Stream(context.Background(), uuid.New(), turn, models.OutgoingRequest{}, "")
	got := collect(t, events, done)

	if len(got) != 1 || got[0].Type != models.EventError {
		t.Fatalf("Expected single error event, got %+v", got)
	}
	if turn.Status != models.TurnFailed {
		t.Errorf("Expected failed status, got %s", turn.Status)
	}
}
