package ai

import "context"

// Suggester drafts a staff reply from recent conversation turns. It knows
// nothing about Telegram or the record store.
type Suggester interface {
	Suggest(ctx context.Context, history []Turn) (string, error)
}

// Turn is one conversation turn in the format the model sees.
type Turn struct {
	Role string // "user" | "assistant"
	Text string
}
