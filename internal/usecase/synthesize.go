package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"localrag/internal/domain"
	"localrag/internal/port"
)

const (
	ResponseModeCompact = "compact"
	ResponseModeRefine  = "refine"
)

// StepKind selects the template used for a synthesis step.
type StepKind string

const (
	StepTextQA StepKind = "text_qa"
	StepRefine StepKind = "refine"
)

// Step is one LLM call in a synthesis plan.
type Step struct {
	Kind    StepKind
	Context string
}

// SynthesizerOptions configures prompt packing.
type SynthesizerOptions struct {
	Mode          string
	ContextWindow int
	NumOutput     int
}

// Synthesizer turns retrieved chunks into an answer. The first step answers
// with the text-QA template and every later step refines that answer.
type Synthesizer struct {
	llm       port.LLM
	prompts   *Prompts
	tokenizer port.Tokenizer
	opts      SynthesizerOptions
}

func NewSynthesizer(llm port.LLM, prompts *Prompts, tokenizer port.Tokenizer, opts SynthesizerOptions) *Synthesizer {
	if opts.Mode == "" {
		opts.Mode = ResponseModeCompact
	}
	return &Synthesizer{
		llm:       llm,
		prompts:   prompts,
		tokenizer: tokenizer,
		opts:      opts,
	}
}

// Plan splits the chunk contexts into steps that each fit the context window.
// In compact mode as many chunks as fit share one step; in refine mode every
// chunk gets its own step.
func (s *Synthesizer) Plan(query string, chunks []domain.ScoredChunk) ([]Step, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	qa, err := s.prompts.TextQA(query, "")
	if err != nil {
		return nil, err
	}
	refine, err := s.prompts.Refine(query, "", "")
	if err != nil {
		return nil, err
	}
	budget, err := s.available(qa, refine)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.ContextText()
	}

	var packs []string
	switch s.opts.Mode {
	case ResponseModeCompact:
		packs = s.repack(texts, budget)
	case ResponseModeRefine:
		for _, text := range texts {
			packs = append(packs, s.splitToBudget(text, budget)...)
		}
	default:
		return nil, fmt.Errorf("unsupported response mode: %s", s.opts.Mode)
	}

	steps := make([]Step, len(packs))
	for i, pack := range packs {
		kind := StepRefine
		if i == 0 {
			kind = StepTextQA
		}
		steps[i] = Step{Kind: kind, Context: pack}
	}
	return steps, nil
}

// Synthesize runs the plan against the LLM. An empty retrieval yields
// domain.EmptyResponse without calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []domain.ScoredChunk) (string, error) {
	steps, err := s.Plan(query, chunks)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		return domain.EmptyResponse, nil
	}

	var answer string
	for i, step := range steps {
		start := time.Now()
		switch step.Kind {
		case StepTextQA:
			prompt, err := s.prompts.TextQA(query, step.Context)
			if err != nil {
				return "", err
			}
			answer, err = s.llm.Complete(ctx, prompt)
			if err != nil {
				return "", fmt.Errorf("synthesis step %d: %w", i+1, err)
			}
		case StepRefine:
			answer, err = s.refine(ctx, query, answer, step.Context)
			if err != nil {
				return "", fmt.Errorf("synthesis step %d: %w", i+1, err)
			}
		}
		log.Debug().Int("step", i+1).Int("steps", len(steps)).Str("kind", string(step.Kind)).Dur("took", time.Since(start)).Msg("synthesis step done")
	}

	return answer, nil
}

// refine folds text into the existing answer. The existing answer takes
// part of the window, so text is split again when it no longer fits.
func (s *Synthesizer) refine(ctx context.Context, query, existing, text string) (string, error) {
	empty, err := s.prompts.Refine(query, existing, "")
	if err != nil {
		return "", err
	}
	budget, err := s.available(empty)
	if err != nil {
		return "", err
	}

	answer := existing
	for _, piece := range s.splitToBudget(text, budget) {
		prompt, err := s.prompts.Refine(query, answer, piece)
		if err != nil {
			return "", err
		}
		answer, err = s.llm.Complete(ctx, prompt)
		if err != nil {
			return "", err
		}
	}
	return answer, nil
}

// available returns the context tokens left once the largest of the given
// empty prompts and the reserved output are taken out of the window.
func (s *Synthesizer) available(emptyPrompts ...string) (int, error) {
	largest := 0
	for _, p := range emptyPrompts {
		if n := s.tokenizer.CountTokens(p); n > largest {
			largest = n
		}
	}
	budget := s.opts.ContextWindow - s.opts.NumOutput - largest
	if budget <= 0 {
		return 0, fmt.Errorf("prompt of %d tokens leaves no room in a %d token context window", largest, s.opts.ContextWindow)
	}
	return budget, nil
}

// repack joins texts with blank lines into as few pieces as fit the budget.
func (s *Synthesizer) repack(texts []string, budget int) []string {
	var pieces []string
	for _, text := range texts {
		pieces = append(pieces, s.splitToBudget(text, budget)...)
	}

	var packs []string
	current := ""
	for _, piece := range pieces {
		if current == "" {
			current = piece
			continue
		}
		candidate := current + "\n\n" + piece
		if s.tokenizer.CountTokens(candidate) <= budget {
			current = candidate
			continue
		}
		packs = append(packs, current)
		current = piece
	}
	if current != "" {
		packs = append(packs, current)
	}
	return packs
}

// splitToBudget breaks text on lines, then on words, into pieces that fit.
// A single word larger than the budget is kept whole.
func (s *Synthesizer) splitToBudget(text string, budget int) []string {
	if s.tokenizer.CountTokens(text) <= budget {
		return []string{text}
	}

	var pieces []string
	var current []string
	sep := "\n"
	flush := func() {
		if len(current) > 0 {
			pieces = append(pieces, strings.Join(current, sep))
			current = nil
		}
	}
	fits := func(next string) bool {
		return s.tokenizer.CountTokens(strings.Join(append(current, next), sep)) <= budget
	}

	for _, line := range strings.Split(text, "\n") {
		if fits(line) {
			current = append(current, line)
			continue
		}
		flush()
		if s.tokenizer.CountTokens(line) <= budget {
			current = append(current, line)
			continue
		}
		sep = " "
		for _, word := range strings.Fields(line) {
			if len(current) > 0 && !fits(word) {
				flush()
			}
			current = append(current, word)
		}
		flush()
		sep = "\n"
	}
	flush()
	return pieces
}
