package contract

import "errors"

// Failure taxonomy for one orchestration turn. Only ErrStorageUnavailable and
// ErrModelUnavailable escalate to a user-visible failure; everything else is
// absorbed into degraded-but-successful conversational output.
var (
	ErrStorageUnavailable   = errors.New("durable store unavailable")
	ErrModelUnavailable     = errors.New("language model unavailable")
	ErrMalformedModelOutput = errors.New("model output violates expected schema")
	ErrToolFailure          = errors.New("tool execution failed")
	ErrValidation           = errors.New("validation failed")
	ErrConversationBusy     = errors.New("conversation is locked by another run")
)
