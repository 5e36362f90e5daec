// Package answer turns retrieved matches into a grounded answer, using
// a chain of generation backends with a local extractive fallback.
package answer

import (
	"github.com/Ashok161/docquery/internal/index"
)

const (
	// MaxSections caps how many matches feed the answer context.
	MaxSections = 5

	// MaxExcerptRunes caps each section's excerpt.
	MaxExcerptRunes = 800

	// FallbackModel names answers composed without a model.
	FallbackModel = "extractive-fallback"

	// NoDocumentsAnswer is returned when retrieval finds nothing
	// relevant. It is an answer, not an error.
	NoDocumentsAnswer = "No relevant documents were found for this question. " +
		"Try rephrasing it, or ingest documents that cover the topic."
)

// Section is one source excerpt grounding an answer. Sections are built
// once per question and shared by the prompt and the fallback.
type Section struct {
	Title   string
	Excerpt string
}

// Answer is the final response to a question.
type Answer struct {
	// Text is the answer body.
	Text string `json:"text"`

	// Model names the backend that produced the text, or
	// FallbackModel when no backend was available.
	Model string `json:"model,omitempty"`

	// Grounded counts the source sections the answer drew from.
	Grounded int `json:"grounded"`
}

// BuildSections converts matches into prompt sections: at most
// MaxSections of them, excerpts hard-capped at MaxExcerptRunes.
func BuildSections(matches []index.Match) []Section {
	n := min(len(matches), MaxSections)
	sections := make([]Section, 0, n)
	for _, m := range matches[:n] {
		sections = append(sections, Section{
			Title:   m.Title(),
			Excerpt: truncate(m.Document, MaxExcerptRunes),
		})
	}
	return sections
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
