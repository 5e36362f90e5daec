package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := &Config{
		Index: IndexConfig{Backend: "pinecone"},
	}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "backend") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about unknown index backend")
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: LLMConfig{Temperature: tt.temp}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "temperature") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_OverlapNotBelowChunkSize(t *testing.T) {
	cfg := &Config{Ingest: IngestConfig{ChunkSize: 200, ChunkOverlap: 200}}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "chunk_overlap") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning when chunk_overlap >= chunk_size")
	}
}

func TestValidate_NegativeMaxDistance(t *testing.T) {
	cfg := &Config{Query: QueryConfig{MaxDistance: -0.5}}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "max_distance") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about negative max_distance")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.ChunkSize != 1000 {
		t.Errorf("expected default chunk_size 1000, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("expected default chunk_overlap 200, got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Query.TopK != 5 {
		t.Errorf("expected default top_k 5, got %d", cfg.Query.TopK)
	}
	if cfg.Query.MaxDistance != 1.5 {
		t.Errorf("expected default max_distance 1.5, got %.2f", cfg.Query.MaxDistance)
	}
	if cfg.LLM.EmbedTimeout != 30*time.Second {
		t.Errorf("expected default embed_timeout 30s, got %s", cfg.LLM.EmbedTimeout)
	}
	if len(cfg.LLM.GenerationModels) != 3 {
		t.Errorf("expected 3 default generation models, got %v", cfg.LLM.GenerationModels)
	}
	if cfg.Index.Backend != "chroma" {
		t.Errorf("expected default backend chroma, got %s", cfg.Index.Backend)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCQUERY_INDEX_COLLECTION", "corpus_test")
	t.Setenv("DOCQUERY_INGEST_MAX_DOCUMENTS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.Collection != "corpus_test" {
		t.Errorf("expected env collection corpus_test, got %s", cfg.Index.Collection)
	}
	if cfg.Ingest.MaxDocuments != 7 {
		t.Errorf("expected env max_documents 7, got %d", cfg.Ingest.MaxDocuments)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docquery.yaml")
	data := []byte("index:\n  collection: from_file\ningest:\n  doc_batch_size: 4\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.Collection != "from_file" {
		t.Errorf("expected collection from_file, got %s", cfg.Index.Collection)
	}
	if cfg.Ingest.DocBatchSize != 4 {
		t.Errorf("expected doc_batch_size 4, got %d", cfg.Ingest.DocBatchSize)
	}
	// Untouched keys keep defaults
	if cfg.Ingest.ChunkSize != 1000 {
		t.Errorf("expected default chunk_size 1000, got %d", cfg.Ingest.ChunkSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}
