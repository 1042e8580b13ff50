// Package textgen declares the external collaborator the AI Reply
// Coordinator drives; no concrete LLM client lives in this module (spec
// §6 lists TextGenerator as a caller-supplied dependency).
package textgen

import "context"

type Message struct {
	Sender string
	Text   string
}

type Request struct {
	Context  string
	Subject  string
	History  []Message
	Preamble string
}

type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, float64, error)
}
