// Package llm defines the embedding and generation interfaces the
// ingestion and query pipelines depend on, plus decorators shared by
// all backends.
package llm

import "context"

// Embedder converts text into an embedding vector.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Name returns the backend identifier.
	Name() string
}

// Generator produces an answer for a fully composed prompt.
type Generator interface {
	// Generate returns the model's answer text.
	Generate(ctx context.Context, prompt string) (string, error)
	// Model returns the model identifier reported in answers.
	Model() string
}
