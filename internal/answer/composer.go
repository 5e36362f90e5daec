package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/llm"
	"github.com/Ashok161/docquery/internal/observability"
)

// Composer produces answers from retrieved matches. It walks an ordered
// chain of generation backends, trying each once per question, and
// falls back to a local extractive answer when the whole chain fails.
type Composer struct {
	generators []llm.Generator
	audit      *observability.AuditLogger
	metrics    *observability.DocqueryMetrics
	logger     *slog.Logger
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithAudit sets the audit logger.
func WithAudit(a *observability.AuditLogger) ComposerOption {
	return func(c *Composer) {
		if a != nil {
			c.audit = a
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.DocqueryMetrics) ComposerOption {
	return func(c *Composer) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ComposerOption {
	return func(c *Composer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewComposer creates a Composer over an ordered generator chain. An
// empty chain is valid: every answer then comes from the fallback.
func NewComposer(generators []llm.Generator, opts ...ComposerOption) *Composer {
	c := &Composer{
		generators: generators,
		audit:      observability.Audit(),
		metrics:    observability.Metrics(),
		logger:     slog.Default().With("component", "answer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose answers a question from its retrieved matches. Zero matches
// yield the fixed no-documents answer, never an error.
func (c *Composer) Compose(ctx context.Context, question string, matches []index.Match) (*Answer, error) {
	if len(matches) == 0 {
		return &Answer{Text: NoDocumentsAnswer, Model: FallbackModel, Grounded: 0}, nil
	}

	sections := BuildSections(matches)
	prompt := buildPrompt(question, sections)

	for _, g := range c.generators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		genCtx, span := observability.StartLLMSpan(ctx, "generate", g.Model())
		text, err := g.Generate(genCtx, prompt)
		if err != nil {
			observability.RecordError(span, err)
			span.End()
			c.metrics.GeneratorFailures.Inc()
			c.audit.LogLLMError(ctx, g.Model(), err)
			c.logger.Warn("generation backend failed",
				"model", g.Model(),
				"error", err)
			continue
		}
		span.End()

		return &Answer{Text: text, Model: g.Model(), Grounded: len(sections)}, nil
	}

	c.audit.LogFallback(ctx, "all generation backends failed")
	c.logger.Warn("falling back to extractive answer",
		"backends_tried", len(c.generators))
	return &Answer{
		Text:     StructuredFallback(question, sections),
		Model:    FallbackModel,
		Grounded: len(sections),
	}, nil
}

// buildPrompt assembles the grounded generation prompt: instructions,
// the source sections, then the question.
func buildPrompt(question string, sections []Section) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n")
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	b.WriteString("Context:\n")
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[Source: %s]\n%s\n", s.Title, s.Excerpt)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", question)
	return b.String()
}
