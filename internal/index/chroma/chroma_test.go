package chroma

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Ashok161/docquery/internal/index"
)

const testCollectionID = "3fa85f64-5717-4562-b3fc-2c963f66afa6"

// fakeChroma records requests and serves the REST endpoints the store
// uses.
type fakeChroma struct {
	mu           sync.Mutex
	calls        []string
	addBodies    []map[string]any
	queryBody    map[string]any
	deleteStatus int // status for DELETE collection
	addStatus    int
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{deleteStatus: http.StatusOK, addStatus: http.StatusCreated}
}

func (f *fakeChroma) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.mu.Unlock()

		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/collections/docs":
			w.WriteHeader(f.deleteStatus)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/collections":
			json.NewEncoder(w).Encode(map[string]string{"id": testCollectionID, "name": "docs"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/collections/docs":
			json.NewEncoder(w).Encode(map[string]string{"id": testCollectionID})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/collections/"+testCollectionID+"/add":
			body, _ := io.ReadAll(r.Body)
			var parsed map[string]any
			json.Unmarshal(body, &parsed)
			f.mu.Lock()
			f.addBodies = append(f.addBodies, parsed)
			f.mu.Unlock()
			w.WriteHeader(f.addStatus)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/collections/"+testCollectionID+"/query":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			json.Unmarshal(body, &f.queryBody)
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{
				"ids":       [][]string{{"a.pdf_chunk_0", "b.pdf_chunk_2"}},
				"documents": [][]string{{"first text", "second text"}},
				"metadatas": [][]map[string]any{{
					{"title": "a", "chunk_index": 0},
					{"title": "b", "chunk_index": 2},
				}},
				"distances": [][]float32{{0.2, 0.8}},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/collections/"+testCollectionID+"/count":
			w.Write([]byte("7"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestStore(serverURL string) *Store {
	return &Store{
		baseURL:    serverURL + "/api/v1",
		collection: "docs",
		http:       &http.Client{},
	}
}

func TestNew_BaseURL(t *testing.T) {
	s := New("localhost", 8000, "docs")
	if s.baseURL != "http://localhost:8000/api/v1" {
		t.Errorf("unexpected baseURL %q", s.baseURL)
	}
	if s.collection != "docs" {
		t.Errorf("unexpected collection %q", s.collection)
	}
}

func TestReset_DeleteThenCreate(t *testing.T) {
	fake := newFakeChroma()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 calls, got %v", fake.calls)
	}
	if !strings.HasPrefix(fake.calls[0], "DELETE") {
		t.Errorf("expected delete first, got %v", fake.calls)
	}
	if fake.calls[1] != "POST /api/v1/collections" {
		t.Errorf("expected create second, got %v", fake.calls)
	}
	if s.id != testCollectionID {
		t.Errorf("collection id not cached: %q", s.id)
	}
}

func TestReset_ToleratesMissingCollection(t *testing.T) {
	fake := newFakeChroma()
	fake.deleteStatus = http.StatusNotFound
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset should tolerate a missing collection: %v", err)
	}
}

func TestReset_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // immediately, so the address refuses connections

	s := newTestStore(server.URL)
	if err := s.Reset(context.Background()); err == nil {
		t.Fatal("expected error when the index is unreachable")
	}
}

func TestAdd_ParallelArrays(t *testing.T) {
	fake := newFakeChroma()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	entries := []index.Entry{
		{
			ID:        "a.pdf_chunk_0",
			Embedding: []float32{0.1, 0.2},
			Document:  "first",
			Metadata:  map[string]any{"title": "a", "skip": nil},
		},
		{
			ID:        "a.pdf_chunk_1",
			Embedding: []float32{0.3, 0.4},
			Document:  "second",
			Metadata:  map[string]any{"title": "a"},
		},
	}
	if err := s.Add(context.Background(), entries); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if len(fake.addBodies) != 1 {
		t.Fatalf("expected 1 add request, got %d", len(fake.addBodies))
	}
	body := fake.addBodies[0]

	ids := body["ids"].([]interface{})
	if len(ids) != 2 || ids[0] != "a.pdf_chunk_0" {
		t.Errorf("unexpected ids %v", ids)
	}
	if embeddings := body["embeddings"].([]interface{}); len(embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(embeddings))
	}
	if documents := body["documents"].([]interface{}); documents[1] != "second" {
		t.Errorf("unexpected documents %v", documents)
	}
	metadatas := body["metadatas"].([]interface{})
	first := metadatas[0].(map[string]any)
	if _, ok := first["skip"]; ok {
		t.Error("nil metadata value should have been dropped")
	}
}

func TestAdd_EmptyIsNoop(t *testing.T) {
	fake := newFakeChroma()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	if err := s.Add(context.Background(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Errorf("expected no HTTP calls, got %v", fake.calls)
	}
}

func TestAdd_ServerError(t *testing.T) {
	fake := newFakeChroma()
	fake.addStatus = http.StatusInternalServerError
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	s.Reset(context.Background())

	err := s.Add(context.Background(), []index.Entry{{ID: "x", Embedding: []float32{1}}})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("expected '500' in error, got: %v", err)
	}
}

func TestQuery_ParsesNestedArrays(t *testing.T) {
	fake := newFakeChroma()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	s.Reset(context.Background())

	matches, err := s.Query(context.Background(), []float32{0.5, 0.5}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a.pdf_chunk_0" || matches[0].Document != "first text" {
		t.Errorf("unexpected first match %+v", matches[0])
	}
	if matches[0].Distance != 0.2 || matches[1].Distance != 0.8 {
		t.Errorf("distances wrong: %v, %v", matches[0].Distance, matches[1].Distance)
	}
	if matches[1].Title() != "b" {
		t.Errorf("metadata lost: %+v", matches[1].Metadata)
	}

	// Request shape
	if fake.queryBody["n_results"] != float64(5) {
		t.Errorf("expected n_results 5, got %v", fake.queryBody["n_results"])
	}
	include := fake.queryBody["include"].([]interface{})
	want := map[string]bool{"documents": true, "metadatas": true, "distances": true}
	for _, inc := range include {
		delete(want, inc.(string))
	}
	if len(want) != 0 {
		t.Errorf("include missing %v", want)
	}
	if _, ok := fake.queryBody["query_embeddings"].([]interface{}); !ok {
		t.Error("query_embeddings not sent as nested array")
	}
}

func TestQuery_LazyCollectionLookup(t *testing.T) {
	fake := newFakeChroma()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	// No Reset: the store must resolve the collection id itself.
	s := newTestStore(server.URL)
	matches, err := s.Query(context.Background(), []float32{0.5}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if fake.calls[0] != "GET /api/v1/collections/docs" {
		t.Errorf("expected collection lookup first, got %v", fake.calls)
	}
}

func TestCount(t *testing.T) {
	fake := newFakeChroma()
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	s := newTestStore(server.URL)
	count, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 7 {
		t.Errorf("expected 7, got %d", count)
	}
}
