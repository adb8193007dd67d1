package ai

import (
	"context"
	"errors"
)

// Role tags a conversation turn with its author.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Provider failure classes. Every error returned by a ChatModel wraps exactly one of them.
var (
	ErrRateLimited = errors.New("generation provider rate limited")
	ErrTimeout     = errors.New("generation provider timed out")
	ErrProvider    = errors.New("generation provider failed")
)

// Turn is a single message exchanged with the generation model.
type Turn struct {
	Role Role   `json:"role" bson:"role"`
	Text string `json:"text" bson:"text"`
}

type Reply struct {
	Text       string
	TokenCount int
}

// ChatModel sends one message on top of the supplied history and returns the model reply.
// Implementations must not retain the history between calls.
type ChatModel interface {
	Send(ctx context.Context, history []Turn, message string) (*Reply, error)
}

// Conversation is a short-lived handle over a persisted turn sequence.
type Conversation struct {
	model ChatModel
	turns []Turn
}

// StartConversation seeds a new handle with a copy of the provided turns.
func StartConversation(model ChatModel, seed []Turn) *Conversation {
	return &Conversation{
		model: model,
		turns: CloneTurns(seed),
	}
}

// Send delivers the message and appends both the message and the reply to the
// handle history. The history is left untouched when the model fails.
func (c *Conversation) Send(ctx context.Context, message string) (*Reply, error) {
	if c == nil || c.model == nil {
		return nil, errors.Join(ErrProvider, errors.New("conversation is not initialized"))
	}

	reply, err := c.model.Send(ctx, CloneTurns(c.turns), message)
	if err != nil {
		return nil, err
	}

	c.turns = append(c.turns,
		Turn{Role: RoleUser, Text: message},
		Turn{Role: RoleModel, Text: reply.Text},
	)

	return reply, nil
}

// Turns returns a copy of the current history, suitable for persistence.
func (c *Conversation) Turns() []Turn {
	if c == nil {
		return nil
	}
	return CloneTurns(c.turns)
}

func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// IsProviderError reports whether err belongs to one of the provider failure classes.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrProvider)
}
