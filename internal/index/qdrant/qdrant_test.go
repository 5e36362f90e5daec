package qdrant

import (
	"context"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/Ashok161/docquery/internal/index"
)

func TestNew_DefaultDimension(t *testing.T) {
	s, err := New(context.Background(), "localhost", 6334, "docs", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if s.dimension != defaultDimension {
		t.Errorf("expected dimension %d, got %d", defaultDimension, s.dimension)
	}
	if s.collection != "docs" {
		t.Errorf("expected collection docs, got %q", s.collection)
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("report.pdf_chunk_0")
	b := pointID("report.pdf_chunk_0")
	c := pointID("report.pdf_chunk_1")

	if a != b {
		t.Errorf("same input produced different IDs: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different inputs produced the same ID: %q", a)
	}
}

func TestEntryToPoint(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := index.Entry{
		ID:        "report.pdf_chunk_2",
		Embedding: []float32{0.1, 0.2, 0.3},
		Document:  "chunk text",
		Metadata: map[string]any{
			"filename":    "report.pdf",
			"chunk_index": 2,
			"ingested_at": ts,
			"archived":    false,
			"skip":        nil,
		},
	}

	pt := entryToPoint(entry)

	if got := pt.Id.GetUuid(); got != pointID("report.pdf_chunk_2") {
		t.Errorf("unexpected point ID %q", got)
	}
	vec := pt.Vectors.GetVector().GetData()
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector %v", vec)
	}
	if got := pt.Payload["content"].GetStringValue(); got != "chunk text" {
		t.Errorf("expected content payload, got %q", got)
	}
	if got := pt.Payload["id"].GetStringValue(); got != "report.pdf_chunk_2" {
		t.Errorf("expected original ID in payload, got %q", got)
	}
	if got := pt.Payload["filename"].GetStringValue(); got != "report.pdf" {
		t.Errorf("expected filename payload, got %q", got)
	}
	if got := pt.Payload["chunk_index"].GetIntegerValue(); got != 2 {
		t.Errorf("expected chunk_index 2, got %d", got)
	}
	if got := pt.Payload["ingested_at"].GetStringValue(); got != "2024-06-01T12:00:00Z" {
		t.Errorf("expected RFC3339 timestamp, got %q", got)
	}
	if pt.Payload["archived"].GetBoolValue() != false {
		t.Error("expected archived false")
	}
	if _, ok := pt.Payload["skip"]; ok {
		t.Error("nil metadata value should be dropped")
	}
}

func TestPointToMatch(t *testing.T) {
	pt := &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "deadbeef"}},
		Score: 0.42,
		Payload: map[string]*pb.Value{
			"content":     {Kind: &pb.Value_StringValue{StringValue: "the text"}},
			"id":          {Kind: &pb.Value_StringValue{StringValue: "report.pdf_chunk_0"}},
			"title":       {Kind: &pb.Value_StringValue{StringValue: "report"}},
			"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: 0}},
		},
	}

	m := pointToMatch(pt)

	if m.ID != "report.pdf_chunk_0" {
		t.Errorf("expected original ID restored, got %q", m.ID)
	}
	if m.Document != "the text" {
		t.Errorf("expected document text, got %q", m.Document)
	}
	if m.Distance != 0.42 {
		t.Errorf("expected distance 0.42, got %v", m.Distance)
	}
	if m.Metadata["title"] != "report" {
		t.Errorf("expected title metadata, got %v", m.Metadata["title"])
	}
	if m.Metadata["chunk_index"] != 0 {
		t.Errorf("expected chunk_index 0, got %v", m.Metadata["chunk_index"])
	}
	if _, ok := m.Metadata["content"]; ok {
		t.Error("content should not leak into metadata")
	}
}

func TestPointToMatch_NoPayloadID(t *testing.T) {
	pt := &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "fallback-uuid"}},
		Score: 1.0,
	}

	m := pointToMatch(pt)
	if m.ID != "fallback-uuid" {
		t.Errorf("expected UUID fallback, got %q", m.ID)
	}
}

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{"text", "text"},
		{true, true},
		{7, 7},
		{int64(9), 9},
		{3.5, 3.5},
	}
	for _, tc := range cases {
		got := fromValue(toValue(tc.in))
		if got != tc.want {
			t.Errorf("round trip of %v: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestToValue_FallbackString(t *testing.T) {
	v := toValue([]string{"a", "b"})
	if got := v.GetStringValue(); got != "[a b]" {
		t.Errorf("expected string fallback, got %q", got)
	}
}
