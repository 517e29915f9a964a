package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// MockLLM answers deterministically and records every prompt it receives.
type MockLLM struct {
	// Respond overrides the default reply when set.
	Respond func(prompt string) (string, error)
	Prompts []string
}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.Prompts = append(m.Prompts, prompt)
	if m.Respond != nil {
		return m.Respond(prompt)
	}
	hash := sha256.Sum256([]byte(prompt))
	return "mock answer " + hex.EncodeToString(hash[:4]), nil
}

func (m *MockLLM) ModelName() string {
	return "mock"
}
