package index

import (
	"testing"
	"time"
)

func TestSanitizeMetadata(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := map[string]any{
		"filename":     "guide.pdf",
		"chunk_index":  3,
		"total_chunks": 10,
		"score":        0.75,
		"active":       true,
		"missing":      nil,
		"ingested_at":  ts,
		"tags":         []string{"a", "b"},
	}

	out := SanitizeMetadata(in)

	if _, ok := out["missing"]; ok {
		t.Error("nil values should be dropped")
	}
	if out["filename"] != "guide.pdf" {
		t.Errorf("string passed through wrong: %v", out["filename"])
	}
	if out["chunk_index"] != 3 {
		t.Errorf("int passed through wrong: %v", out["chunk_index"])
	}
	if out["score"] != 0.75 {
		t.Errorf("float passed through wrong: %v", out["score"])
	}
	if out["active"] != true {
		t.Errorf("bool passed through wrong: %v", out["active"])
	}
	if out["ingested_at"] != "2024-06-01T12:00:00Z" {
		t.Errorf("time not formatted: %v", out["ingested_at"])
	}
	if _, ok := out["tags"].(string); !ok {
		t.Errorf("non-primitive should be coerced to string, got %T", out["tags"])
	}
}

func TestSanitizeMetadata_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"a": nil, "b": "keep"}
	SanitizeMetadata(in)
	if _, ok := in["a"]; !ok {
		t.Error("input map was mutated")
	}
}

func TestMatch_Title(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		want string
	}{
		{"title", map[string]any{"title": "legal contracts guide"}, "legal contracts guide"},
		{"filename_fallback", map[string]any{"filename": "guide.pdf"}, "guide.pdf"},
		{"empty_title", map[string]any{"title": "", "filename": "guide.pdf"}, "guide.pdf"},
		{"nothing", map[string]any{}, "unknown source"},
		{"nil_meta", nil, "unknown source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Match{Metadata: tt.meta}
			if got := m.Title(); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}
