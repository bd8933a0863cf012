// Package agent is the question-answering collaborator: it relays natural-language
// questions about the merged invoice table to an LLM and returns its answer text.
package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Answerer answers a natural-language question given a fixed contextual
// preamble. The answer is free text and is never parsed or validated here.
type Answerer interface {
	Answer(ctx context.Context, question, preamble string) (string, error)
}

// Gemini is the genai-backed Answerer.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini answerer. Credentials come from the environment
// (GEMINI_API_KEY or Application Default Credentials).
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("agent.NewGemini: create genai client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Answer sends the preamble and question to the model and returns its text.
func (g *Gemini) Answer(ctx context.Context, question, preamble string) (string, error) {
	prompt := preamble + "\n\nPergunta do usuário: " + question

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	// Low temperature for factual answers over the table.
	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("agent.Answer: generate content: %w", err)
	}

	answer := cleanModelText(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("agent.Answer: empty response from model")
	}

	return answer, nil
}

// cleanModelText strips Markdown code fences the model sometimes wraps answers in.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}

	return strings.TrimSpace(s)
}

var _ Answerer = (*Gemini)(nil)
