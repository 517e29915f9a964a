package usecase

import (
	"context"
	"fmt"

	"localrag/internal/domain"
	"localrag/internal/port"
)

// QueryUseCase answers a question from the indexed chunks.
type QueryUseCase struct {
	retriever   port.Retriever
	synthesizer *Synthesizer
	topK        int
}

// NewQueryUseCase creates a new query use case.
func NewQueryUseCase(retriever port.Retriever, synthesizer *Synthesizer, topK int) *QueryUseCase {
	if topK <= 0 {
		topK = 2
	}
	return &QueryUseCase{
		retriever:   retriever,
		synthesizer: synthesizer,
		topK:        topK,
	}
}

// Query retrieves the top-k chunks and synthesizes an answer from them.
func (u *QueryUseCase) Query(ctx context.Context, query string) (*domain.Answer, error) {
	chunks, err := u.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	response, err := u.synthesizer.Synthesize(ctx, query, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize answer: %w", err)
	}

	return &domain.Answer{
		Query:    query,
		Response: response,
		Sources:  chunks,
	}, nil
}

// Prompts renders the prompts Query would send. Refine prompts reference the
// previous step's answer by placeholder since no model is called.
func (u *QueryUseCase) Prompts(ctx context.Context, query string) ([]string, error) {
	chunks, err := u.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	steps, err := u.synthesizer.Plan(query, chunks)
	if err != nil {
		return nil, err
	}

	prompts := make([]string, 0, len(steps))
	for i, step := range steps {
		var prompt string
		switch step.Kind {
		case StepTextQA:
			prompt, err = u.synthesizer.prompts.TextQA(query, step.Context)
		case StepRefine:
			prompt, err = u.synthesizer.prompts.Refine(query, fmt.Sprintf("<answer from step %d>", i), step.Context)
		}
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, prompt)
	}
	return prompts, nil
}

func (u *QueryUseCase) retrieve(ctx context.Context, query string) ([]domain.ScoredChunk, error) {
	chunks, err := u.retriever.Search(ctx, query, u.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve: %w", err)
	}
	return chunks, nil
}
