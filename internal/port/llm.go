package port

import "context"

// LLM represents a chat model used for answer synthesis.
type LLM interface {
	// Complete sends the prompt as a single user message and returns the reply.
	Complete(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
