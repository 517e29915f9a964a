package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

// PromptData is the input to the answer templates.
type PromptData struct {
	Query          string
	Context        string
	ExistingAnswer string
}

// Prompts renders the text-QA and refine templates.
type Prompts struct {
	textQA *template.Template
	refine *template.Template
}

func LoadPrompts() (*Prompts, error) {
	textQA, err := parsePrompt("templates/text_qa.txt")
	if err != nil {
		return nil, err
	}
	refine, err := parsePrompt("templates/refine.txt")
	if err != nil {
		return nil, err
	}
	return &Prompts{textQA: textQA, refine: refine}, nil
}

func parsePrompt(name string) (*template.Template, error) {
	content, err := promptTemplates.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

func (p *Prompts) TextQA(query, context string) (string, error) {
	return render(p.textQA, PromptData{Query: query, Context: context})
}

func (p *Prompts) Refine(query, existingAnswer, context string) (string, error) {
	return render(p.refine, PromptData{Query: query, Context: context, ExistingAnswer: existingAnswer})
}

func render(tmpl *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
