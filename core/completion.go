package core

import "context"

type CompletionRole string

const (
	CompletionRoleSystem    CompletionRole = "system"
	CompletionRoleUser      CompletionRole = "user"
	CompletionRoleAssistant CompletionRole = "assistant"
)

// CompletionMessage is one entry of the ordered context sent to the model.
type CompletionMessage struct {
	Role    CompletionRole `json:"role"`
	Content string         `json:"content"`
}

// CompletionService produces a reply for an ordered message context.
// Errors wrap ErrCompletionUnavailable or ErrCompletionMalformed.
type CompletionService interface {
	Complete(ctx context.Context, messages []CompletionMessage) (string, error)
}

// CompletionClient is decided once at startup: either a configured service
// or the reason none is available. Call sites switch on the concrete type.
type CompletionClient interface {
	completionClient()
}

type ConfiguredCompletion struct {
	Service  CompletionService
	Provider string
}

type UnconfiguredCompletion struct {
	Reason string
}

func (ConfiguredCompletion) completionClient()   {}
func (UnconfiguredCompletion) completionClient() {}
