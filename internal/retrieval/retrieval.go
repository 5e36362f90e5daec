// Package retrieval embeds questions and finds the closest indexed
// chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/llm"
	"github.com/Ashok161/docquery/internal/observability"
)

const (
	// MinQuestionLength is the shortest question, in runes after
	// trimming, that is worth embedding.
	MinQuestionLength = 3

	DefaultTopK        = 5
	DefaultMaxDistance = 1.5
)

// ErrQuestionTooShort is returned before any remote call is made.
var ErrQuestionTooShort = fmt.Errorf("question must be at least %d characters", MinQuestionLength)

// Retriever finds the indexed chunks nearest to a question.
type Retriever struct {
	embedder    llm.Embedder
	store       index.Store
	topK        int
	maxDistance float32
	metrics     *observability.DocqueryMetrics
	logger      *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets how many candidates are requested from the index.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithMaxDistance sets the relevance cutoff. Matches at or beyond this
// distance are discarded.
func WithMaxDistance(d float64) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.maxDistance = float32(d)
		}
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder llm.Embedder, store index.Store, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	if store == nil {
		return nil, errors.New("index store required")
	}
	r := &Retriever{
		embedder:    embedder,
		store:       store,
		topK:        DefaultTopK,
		maxDistance: DefaultMaxDistance,
		metrics:     observability.Metrics(),
		logger:      slog.Default().With("component", "retrieval"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve returns the matches within the distance cutoff, closest
// first. A non-positive k falls back to the configured top-k. Finding
// nothing relevant is a valid result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]index.Match, error) {
	q := strings.TrimSpace(question)
	if utf8.RuneCountInString(q) < MinQuestionLength {
		return nil, ErrQuestionTooShort
	}
	if k <= 0 {
		k = r.topK
	}

	start := time.Now()
	embedding, err := r.embedder.Embed(ctx, q)
	r.metrics.RecordEmbed(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	candidates, err := r.store.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	var kept []index.Match
	for _, m := range candidates {
		if m.Distance < r.maxDistance {
			kept = append(kept, m)
		}
	}
	r.logger.Debug("retrieval complete",
		"candidates", len(candidates),
		"kept", len(kept),
		"max_distance", r.maxDistance)
	return kept, nil
}
