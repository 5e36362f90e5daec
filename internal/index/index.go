// Package index defines the vector index abstraction shared by the
// chroma and qdrant backends.
package index

import (
	"context"
	"fmt"
	"time"
)

// Entry is one chunk ready for indexing.
type Entry struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  map[string]any
}

// Match is a single result from a similarity query. Distance is
// non-negative; smaller means more similar.
type Match struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float32
}

// Title returns the human-readable source title from metadata, falling
// back to the filename.
func (m Match) Title() string {
	if t, ok := m.Metadata["title"].(string); ok && t != "" {
		return t
	}
	if f, ok := m.Metadata["filename"].(string); ok && f != "" {
		return f
	}
	return "unknown source"
}

// Store provides vector persistence and nearest-neighbour queries.
type Store interface {
	// Reset drops the collection if it exists and recreates it empty.
	Reset(ctx context.Context) error
	// Add writes entries to the collection. Existing IDs are overwritten.
	Add(ctx context.Context, entries []Entry) error
	// Query returns up to k nearest entries, closest first.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)
	// Count reports the number of stored entries.
	Count(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}

// SanitizeMetadata returns a copy holding only values index backends
// accept: strings, numbers, and booleans. Nil values are dropped, times
// become RFC 3339 strings, and anything else is coerced to a string.
func SanitizeMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = val
		case int, int32, int64, uint, uint32, uint64:
			out[k] = val
		case float32:
			out[k] = float64(val)
		case float64:
			out[k] = val
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}
