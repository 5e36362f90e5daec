package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ashok161/docquery/internal/chunk"
	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/llm"
	"github.com/Ashok161/docquery/internal/observability"
	"github.com/Ashok161/docquery/internal/ratelimit"
)

const (
	defaultBatchSize     = 10
	defaultWriteAttempts = 3
	defaultWriteDelay    = time.Second
)

// Uploader embeds chunks and writes them to the index in sub-batches.
// A sub-batch is written only if every chunk in it embedded, so the
// index never holds a partially embedded batch.
type Uploader struct {
	embedder      llm.Embedder
	store         index.Store
	limiter       ratelimit.Limiter
	batchSize     int
	writeAttempts int
	writeDelay    time.Duration
	metrics       *observability.DocqueryMetrics
	logger        *slog.Logger
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithBatchSize sets how many chunks are embedded per sub-batch.
func WithBatchSize(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.batchSize = n
		}
	}
}

// WithWriteRetry sets the retry policy for index writes.
func WithWriteRetry(attempts int, delay time.Duration) UploaderOption {
	return func(u *Uploader) {
		if attempts > 0 {
			u.writeAttempts = attempts
		}
		if delay > 0 {
			u.writeDelay = delay
		}
	}
}

// NewUploader creates an Uploader. The limiter paces consecutive embed
// calls; pass ratelimit.Noop to disable pacing.
func NewUploader(embedder llm.Embedder, store index.Store, limiter ratelimit.Limiter, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		embedder:      embedder,
		store:         store,
		limiter:       limiter,
		batchSize:     defaultBatchSize,
		writeAttempts: defaultWriteAttempts,
		writeDelay:    defaultWriteDelay,
		metrics:       observability.Metrics(),
		logger:        slog.Default().With("component", "ingest.uploader"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload embeds and indexes the given chunks. It returns the number of
// chunks actually written and the first error encountered. A failed
// sub-batch does not stop later sub-batches; a cancelled context does.
func (u *Uploader) Upload(ctx context.Context, chunks []chunk.Chunk) (int, error) {
	added := 0
	var firstErr error

	for start := 0; start < len(chunks); start += u.batchSize {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return added, firstErr
		}

		end := start + u.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		entries, err := u.embedBatch(ctx, batch)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return added, firstErr
			}
			u.logger.Warn("sub-batch dropped",
				"from", batch[0].ID(),
				"size", len(batch),
				"error", err)
			continue
		}

		if err := u.writeBatch(ctx, entries); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return added, firstErr
			}
			u.logger.Warn("index write failed",
				"from", batch[0].ID(),
				"size", len(batch),
				"error", err)
			continue
		}
		added += len(entries)
	}
	return added, firstErr
}

// embedBatch embeds every chunk of one sub-batch, or none of them.
func (u *Uploader) embedBatch(ctx context.Context, batch []chunk.Chunk) ([]index.Entry, error) {
	entries := make([]index.Entry, 0, len(batch))
	for _, c := range batch {
		if err := u.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		start := time.Now()
		embedding, err := u.embedder.Embed(ctx, c.Text)
		u.metrics.RecordEmbed(time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", c.ID(), err)
		}
		entries = append(entries, index.Entry{
			ID:        c.ID(),
			Embedding: embedding,
			Document:  c.Text,
			Metadata: map[string]any{
				"filename":     c.Filename,
				"source":       c.Source,
				"title":        c.Title,
				"chunk_index":  c.Index,
				"total_chunks": c.Total,
				"ingested_at":  c.CreatedAt,
			},
		})
	}
	return entries, nil
}

func (u *Uploader) writeBatch(ctx context.Context, entries []index.Entry) error {
	var lastErr error
	for attempt := 1; attempt <= u.writeAttempts; attempt++ {
		lastErr = u.store.Add(ctx, entries)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt == u.writeAttempts {
			break
		}
		delay := time.Duration(attempt) * u.writeDelay
		u.logger.Warn("index write retry",
			"attempt", attempt,
			"delay", delay,
			"error", lastErr)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("index write failed after %d attempts: %w", u.writeAttempts, lastErr)
}
