// Package ingest turns a directory of PDF documents into indexed,
// embedded chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/Ashok161/docquery/internal/chunk"
	"github.com/Ashok161/docquery/internal/extract"
	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/observability"
	"github.com/Ashok161/docquery/internal/ratelimit"
)

const (
	defaultMaxDocuments  = 20
	defaultDocumentBatch = 2
	defaultMinTextLength = 100
)

// Pipeline orchestrates a full ingestion run: discover PDFs, reset the
// collection, and process documents in small parallel batches.
type Pipeline struct {
	store       index.Store
	uploader    *Uploader
	splitter    *chunk.Splitter
	extractText func(path string) (string, error)
	pool        *ants.Pool
	pause       ratelimit.Limiter
	maxDocs     int
	batchSize   int
	minText     int
	collection  string
	audit       *observability.AuditLogger
	metrics     *observability.DocqueryMetrics
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithMaxDocuments caps how many discovered documents are ingested.
// Zero or negative disables the cap.
func WithMaxDocuments(n int) Option {
	return func(p *Pipeline) error {
		p.maxDocs = n
		return nil
	}
}

// WithDocumentBatch sets how many documents are processed concurrently.
func WithDocumentBatch(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.batchSize = n
		return nil
	}
}

// WithBatchPause sets the limiter that spaces consecutive document
// batches.
func WithBatchPause(l ratelimit.Limiter) Option {
	return func(p *Pipeline) error {
		if l != nil {
			p.pause = l
		}
		return nil
	}
}

// WithMinTextLength sets the minimum extracted text length, in runes,
// for a document to be ingested.
func WithMinTextLength(n int) Option {
	return func(p *Pipeline) error {
		if n >= 0 {
			p.minText = n
		}
		return nil
	}
}

// WithSplitter sets the chunking strategy.
func WithSplitter(s *chunk.Splitter) Option {
	return func(p *Pipeline) error {
		if s != nil {
			p.splitter = s
		}
		return nil
	}
}

// WithCollection names the collection in audit events.
func WithCollection(name string) Option {
	return func(p *Pipeline) error {
		p.collection = name
		return nil
	}
}

// WithExtractor overrides how text is pulled out of a document file.
func WithExtractor(fn func(path string) (string, error)) Option {
	return func(p *Pipeline) error {
		if fn != nil {
			p.extractText = fn
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(store index.Store, uploader *Uploader, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if uploader == nil {
		return nil, ErrUploaderRequired
	}

	p := &Pipeline{
		store:       store,
		uploader:    uploader,
		splitter:    chunk.NewSplitter(chunk.DefaultSize, chunk.DefaultOverlap),
		extractText: extract.File,
		pause:       ratelimit.Noop{},
		maxDocs:     defaultMaxDocuments,
		batchSize:   defaultDocumentBatch,
		minText:     defaultMinTextLength,
		collection:  "documents",
		audit:       observability.Audit(),
		metrics:     observability.Metrics(),
		logger:      slog.Default().With("component", "ingest.pipeline"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Run ingests every PDF under dir. The collection is reset first, so a
// run always replaces the previous index contents. An unreachable index
// aborts the run; per-document failures do not. On cancellation the
// remaining documents are marked failed and the context error is
// returned along with the partial stats.
func (p *Pipeline) Run(ctx context.Context, dir string) (*RunStats, error) {
	stats := NewRunStats()
	runID := fmt.Sprintf("run-%s", uuid.NewString())

	docs, err := extract.Discover(dir, p.maxDocs)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartIngestSpan(ctx, dir, len(docs))
	defer span.End()

	p.logger.Info("ingestion started", "run_id", runID, "dir", dir, "documents", len(docs))
	p.audit.LogRunStart(ctx, runID, dir, len(docs))

	if err := p.store.Reset(ctx); err != nil {
		p.audit.LogIndexReset(ctx, runID, p.collection, err)
		observability.RecordError(span, err)
		return nil, fmt.Errorf("reset index: %w", err)
	}
	p.audit.LogIndexReset(ctx, runID, p.collection, nil)

	outcomes := make([]Outcome, len(docs))
	var runErr error

	for start := 0; start < len(docs); start += p.batchSize {
		if err := p.pause.Wait(ctx); err != nil {
			for i := start; i < len(docs); i++ {
				outcomes[i] = Outcome{Filename: docs[i].Name, Reason: ReasonCancelled}
			}
			runErr = ctx.Err()
			break
		}

		end := min(start+p.batchSize, len(docs))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			slot, doc := i, docs[i]
			wg.Add(1)
			if err := p.pool.Submit(func() {
				defer wg.Done()
				outcomes[slot] = p.processDocument(ctx, runID, doc)
			}); err != nil {
				wg.Done()
				outcomes[slot] = Outcome{Filename: doc.Name, Reason: fmt.Sprintf("submit worker: %v", err)}
			}
		}
		wg.Wait()
	}

	stats.Reduce(outcomes)
	stats.Finish()

	p.metrics.RecordIngestRun(stats.Duration, stats.Succeeded, stats.Failed, stats.ChunksAdded)
	observability.RecordIngestResult(span, stats.Succeeded, stats.Failed, stats.ChunksAdded)
	p.audit.LogRunComplete(ctx, runID, stats.Duration, stats.Succeeded, stats.Failed, stats.ChunksAdded)
	p.logger.Info("ingestion finished",
		"run_id", runID,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"chunks_added", stats.ChunksAdded,
		"duration", stats.Duration.Round(0))

	return stats, runErr
}

func (p *Pipeline) processDocument(ctx context.Context, runID string, doc extract.Document) Outcome {
	ctx, span := observability.StartDocumentSpan(ctx, doc.Name)
	defer span.End()

	p.metrics.ActiveWorkers.Inc()
	defer p.metrics.ActiveWorkers.Dec()

	out := p.ingestDocument(ctx, doc)

	observability.RecordDocumentResult(span, out.Chunks, out.Reason)
	p.audit.LogDocument(ctx, runID, doc.Name, out.Chunks, out.Reason)
	if out.Failed() {
		p.logger.Warn("document rejected", "filename", doc.Name, "reason", out.Reason)
	} else {
		p.logger.Info("document indexed", "filename", doc.Name, "chunks", out.Chunks)
	}
	return out
}

// ingestDocument runs one document through extract, chunk, and upload.
// A document succeeds when at least one of its chunks reaches the index.
func (p *Pipeline) ingestDocument(ctx context.Context, doc extract.Document) Outcome {
	if ctx.Err() != nil {
		return Outcome{Filename: doc.Name, Reason: ReasonCancelled}
	}

	text, err := p.extractText(doc.Path)
	if err != nil {
		return Outcome{Filename: doc.Name, Reason: err.Error()}
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < p.minText {
		return Outcome{Filename: doc.Name, Reason: fmt.Sprintf("extracted text too short: %d runes", n)}
	}

	chunks := p.splitter.Split(text, chunk.Document{
		Filename: doc.Name,
		Source:   doc.Source,
		Title:    doc.Title,
	})
	if len(chunks) == 0 {
		return Outcome{Filename: doc.Name, Reason: "no chunks produced"}
	}

	added, err := p.uploader.Upload(ctx, chunks)
	if added == 0 {
		if ctx.Err() != nil {
			return Outcome{Filename: doc.Name, Reason: ReasonCancelled}
		}
		reason := "no chunks indexed"
		if err != nil {
			reason = err.Error()
		}
		return Outcome{Filename: doc.Name, Reason: reason}
	}
	return Outcome{Filename: doc.Name, Chunks: added}
}

// Release frees the worker pool. The pipeline must not be used after
// calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
