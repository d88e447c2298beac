package chat

import "errors"

// Attachment-level failures. These are absorbed by the ingestion pipeline and
// surfaced as visible markers in the assembled context; they never abort a
// batch.
var (
	ErrUnsupportedKind   = errors.New("unsupported attachment kind")
	ErrEngineUnavailable = errors.New("extraction engine unavailable")
	ErrExtractionTimeout = errors.New("extraction timed out")
)

// Directive-level failures. These are returned synchronously to the caller
// and never start a stream; conversation state is unchanged.
var (
	ErrBudgetExhausted  = errors.New("context budget exhausted")
	ErrInvalidState     = errors.New("directive not valid for current conversation state")
	ErrConversationBusy = errors.New("conversation already has a directive in flight")
	ErrNotFound         = errors.New("conversation not found")
)

// Turn-level failures. These terminate the stream with a visible error event;
// partial content already streamed is retained and persisted.
var (
	ErrUpstream       = errors.New("upstream provider error")
	ErrMalformedDelta = errors.New("malformed upstream delta")
)

// ErrorKind returns the wire name for a turn-level failure, carried on the
// terminal error StreamEvent.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedDelta):
		return "malformed_delta"
	default:
		return "upstream_error"
	}
}
