// Package chroma implements index.Store against the Chroma REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/Ashok161/docquery/internal/index"
)

// Store talks to one Chroma collection over HTTP. Collection contents
// are addressed by the server-assigned collection UUID, which is
// resolved on Reset or lazily on first use.
type Store struct {
	baseURL    string
	collection string
	http       *http.Client

	mu sync.Mutex
	id string
}

// New creates a Chroma-backed store for the named collection.
func New(host string, port int, collection string) *Store {
	return &Store{
		baseURL:    fmt.Sprintf("http://%s:%d/api/v1", host, port),
		collection: collection,
		http:       &http.Client{},
	}
}

// Reset drops the collection if it exists and recreates it empty.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.deleteCollection(ctx); err != nil {
		return err
	}
	id, err := s.createCollection(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	return nil
}

// Add writes entries as the API's parallel arrays. Existing IDs are
// overwritten, never duplicated.
func (s *Store) Add(ctx context.Context, entries []index.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	id, err := s.collectionID(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	documents := make([]string, len(entries))
	metadatas := make([]map[string]any, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		embeddings[i] = e.Embedding
		documents[i] = e.Document
		metadatas[i] = index.SanitizeMetadata(e.Metadata)
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return s.do(ctx, http.MethodPost, "/collections/"+id+"/add", body, nil)
}

// Query returns up to k nearest entries, closest first.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]index.Match, error) {
	id, err := s.collectionID(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var result struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float32        `json:"distances"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+id+"/query", body, &result); err != nil {
		return nil, err
	}
	if len(result.IDs) == 0 {
		return nil, nil
	}

	row := result.IDs[0]
	matches := make([]index.Match, len(row))
	for i, matchID := range row {
		m := index.Match{ID: matchID}
		if len(result.Documents) > 0 && i < len(result.Documents[0]) {
			m.Document = result.Documents[0][i]
		}
		if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
			m.Metadata = result.Metadatas[0][i]
		}
		if len(result.Distances) > 0 && i < len(result.Distances[0]) {
			m.Distance = result.Distances[0][i]
		}
		matches[i] = m
	}
	return matches, nil
}

// Count reports the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	id, err := s.collectionID(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.do(ctx, http.MethodGet, "/collections/"+id+"/count", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) deleteCollection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/collections/"+s.collection, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("chroma: delete collection: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	// A collection that was never created is fine to "delete".
	if resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound ||
		strings.Contains(string(respBody), "does not exist") {
		return nil
	}
	return fmt.Errorf("chroma: %s: %s", resp.Status, respBody)
}

func (s *Store) createCollection(ctx context.Context) (string, error) {
	body := map[string]any{"name": s.collection, "get_or_create": true}
	var result struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections", body, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("chroma: create collection %s returned no id", s.collection)
	}
	return result.ID, nil
}

// collectionID returns the cached collection UUID, looking it up when
// the store is used without a prior Reset (the query path).
func (s *Store) collectionID(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("chroma: collection %s has no id", s.collection)
	}
	s.mu.Lock()
	s.id = result.ID
	s.mu.Unlock()
	return result.ID, nil
}

func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("chroma: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chroma: %s: %s", resp.Status, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("chroma: decoding %s response: %w", path, err)
		}
	}
	return nil
}

var _ index.Store = (*Store)(nil)
