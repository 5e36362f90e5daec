// Package e2e runs the ingestion and query paths together against an
// in-memory index, with no network and no real PDF parsing.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Ashok161/docquery/internal/answer"
	"github.com/Ashok161/docquery/internal/chunk"
	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/ingest"
	"github.com/Ashok161/docquery/internal/llm"
	"github.com/Ashok161/docquery/internal/ratelimit"
	"github.com/Ashok161/docquery/internal/retrieval"
	"github.com/Ashok161/docquery/internal/server"
)

// memIndex is an in-memory index.Store with real distance math.
type memIndex struct {
	mu      sync.Mutex
	entries []index.Entry
}

func (m *memIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

func (m *memIndex) Add(ctx context.Context, entries []index.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		replaced := false
		for i := range m.entries {
			if m.entries[i].ID == e.ID {
				m.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			m.entries = append(m.entries, e)
		}
	}
	return nil
}

func (m *memIndex) Query(ctx context.Context, embedding []float32, k int) ([]index.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]index.Match, 0, len(m.entries))
	for _, e := range m.entries {
		matches = append(matches, index.Match{
			ID:       e.ID,
			Document: e.Document,
			Metadata: e.Metadata,
			Distance: euclidean(embedding, e.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *memIndex) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *memIndex) Close() error { return nil }

func euclidean(a, b []float32) float32 {
	var sum float64
	for i := range a {
		if i >= len(b) {
			break
		}
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// constEmbedder maps every text to the same vector, so every stored
// chunk sits at distance zero from every question.
type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (constEmbedder) Name() string { return "test/const" }

var _ llm.Embedder = constEmbedder{}

func writePDFs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4 stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func extractorFor(texts map[string]string) func(string) (string, error) {
	return func(path string) (string, error) {
		text, ok := texts[filepath.Base(path)]
		if !ok {
			return "", fmt.Errorf("no text for %s", filepath.Base(path))
		}
		return text, nil
	}
}

const contractText = "The master services agreement may be terminated by either party " +
	"with thirty days of written notice. Any dispute arising under this " +
	"agreement is resolved through binding arbitration. The prevailing " +
	"party recovers reasonable attorney fees and costs of the proceeding."

func newIngestedIndex(t *testing.T) (*memIndex, *ingest.RunStats) {
	t.Helper()

	dir := writePDFs(t, "contracts.pdf", "note.pdf", "policy.pdf")
	texts := map[string]string{
		"contracts.pdf": contractText,
		"note.pdf":      strings.Repeat("x", 50),
		"policy.pdf":    contractText + " Renewal terms require ninety days of advance notice.",
	}

	store := &memIndex{}
	uploader := ingest.NewUploader(constEmbedder{}, store, ratelimit.Noop{})
	pipeline, err := ingest.NewPipeline(store, uploader,
		ingest.WithExtractor(extractorFor(texts)),
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(pipeline.Release)

	stats, err := pipeline.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return store, stats
}

func TestEndToEnd_IngestThenAnswer(t *testing.T) {
	store, stats := newIngestedIndex(t)

	if stats.Processed != 3 {
		t.Fatalf("expected 3 documents processed, got %d", stats.Processed)
	}
	if stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("expected 2 succeeded and 1 failed, got %d and %d", stats.Succeeded, stats.Failed)
	}
	if len(stats.Failures) != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", len(stats.Failures))
	}
	if stats.Failures[0].Filename != "note.pdf" {
		t.Errorf("expected note.pdf to fail, got %q", stats.Failures[0].Filename)
	}
	if !strings.Contains(stats.Failures[0].Reason, "too short") {
		t.Errorf("expected too-short reason, got %q", stats.Failures[0].Reason)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("expected indexed chunks")
	}
	if count != stats.ChunksAdded {
		t.Errorf("stats report %d chunks, index holds %d", stats.ChunksAdded, count)
	}

	retriever, err := retrieval.NewRetriever(constEmbedder{}, store)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	matches, err := retriever.Retrieve(context.Background(), "How are contract disputes resolved?", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches from the ingested corpus")
	}
	if len(matches) > retrieval.DefaultTopK {
		t.Fatalf("expected at most %d matches, got %d", retrieval.DefaultTopK, len(matches))
	}

	composer := answer.NewComposer(nil)
	ans, err := composer.Compose(context.Background(), "How are contract disputes resolved?", matches)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if ans.Model != answer.FallbackModel {
		t.Errorf("expected extractive fallback, got %q", ans.Model)
	}
	if ans.Grounded == 0 {
		t.Error("expected grounded sections")
	}
	if !strings.Contains(ans.Text, "[Source:") {
		t.Errorf("expected source attribution in answer:\n%s", ans.Text)
	}
}

func TestEndToEnd_ReingestOverwrites(t *testing.T) {
	store, first := newIngestedIndex(t)

	dir := writePDFs(t, "contracts.pdf")
	uploader := ingest.NewUploader(constEmbedder{}, store, ratelimit.Noop{})
	pipeline, err := ingest.NewPipeline(store, uploader,
		ingest.WithExtractor(extractorFor(map[string]string{"contracts.pdf": contractText})),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pipeline.Release)

	second, err := pipeline.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The second run resets the collection, so only its own chunks
	// remain and their IDs repeat the first run's.
	count, _ := store.Count(context.Background())
	if count != second.ChunksAdded {
		t.Errorf("expected %d chunks after reingest, got %d", second.ChunksAdded, count)
	}
	if first.ChunksAdded <= second.ChunksAdded {
		t.Errorf("first run indexed %d chunks, second only contracts.pdf with %d", first.ChunksAdded, second.ChunksAdded)
	}
	for _, e := range store.entries {
		if !strings.HasPrefix(e.ID, "contracts.pdf_chunk_") {
			t.Errorf("unexpected entry id %q", e.ID)
		}
	}
}

func TestEndToEnd_EmptyIndexAnswersNoDocuments(t *testing.T) {
	store := &memIndex{}

	retriever, err := retrieval.NewRetriever(constEmbedder{}, store)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := retriever.Retrieve(context.Background(), "contract disputes", 0)
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}

	ans, err := answer.NewComposer(nil).Compose(context.Background(), "contract disputes", matches)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if ans.Text != answer.NoDocumentsAnswer {
		t.Errorf("expected no-documents answer, got %q", ans.Text)
	}
	if ans.Grounded != 0 {
		t.Errorf("expected grounded 0, got %d", ans.Grounded)
	}
}

func TestEndToEnd_QueryAPI(t *testing.T) {
	store, _ := newIngestedIndex(t)

	retriever, err := retrieval.NewRetriever(constEmbedder{}, store)
	if err != nil {
		t.Fatal(err)
	}
	api, err := server.NewAPIServer(retriever, answer.NewComposer(nil), store)
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(api.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/query", "application/json",
		strings.NewReader(`{"question": "How are contract disputes resolved?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Success bool   `json:"success"`
		Answer  string `json:"answer"`
		Model   string `json:"model"`
		Matches int    `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success {
		t.Error("expected success")
	}
	if body.Matches == 0 {
		t.Error("expected matches")
	}
	if body.Model != answer.FallbackModel {
		t.Errorf("expected fallback model, got %q", body.Model)
	}
	if body.Answer == "" {
		t.Error("expected non-empty answer")
	}

	statsResp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer statsResp.Body.Close()

	var statsBody struct {
		Documents int `json:"documents"`
	}
	if err := json.NewDecoder(statsResp.Body).Decode(&statsBody); err != nil {
		t.Fatal(err)
	}
	count, _ := store.Count(context.Background())
	if statsBody.Documents != count {
		t.Errorf("stats reported %d, index holds %d", statsBody.Documents, count)
	}
}

func TestEndToEnd_ChunkIDsAreDeterministic(t *testing.T) {
	splitter := chunk.NewSplitter(chunk.DefaultSize, chunk.DefaultOverlap)
	doc := chunk.Document{Filename: "contracts.pdf", Source: "contracts.pdf", Title: "contracts"}

	first := splitter.Split(contractText, doc)
	second := splitter.Split(contractText, doc)

	if len(first) == 0 {
		t.Fatal("expected chunks")
	}
	for i := range first {
		if first[i].ID() != second[i].ID() {
			t.Errorf("chunk %d id differs between runs: %q vs %q", i, first[i].ID(), second[i].ID())
		}
	}
}
