// Package qdrant implements index.Store on the Qdrant gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Ashok161/docquery/internal/index"
)

const defaultDimension = 768

// Store implements index.Store using Qdrant. Collections are created
// with the Euclid metric so scores come back as distances, smaller
// meaning more similar, matching the rest of the retrieval pipeline.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   uint64
}

// New creates a Qdrant-backed store.
func New(ctx context.Context, host string, port int, collection string, dimension int) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimension:   uint64(dimension),
	}, nil
}

// Reset drops the collection if it exists and recreates it empty.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		if !strings.Contains(err.Error(), "doesn't exist") && !strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("qdrant delete collection: %w", err)
		}
	}

	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimension,
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

// Add upserts entries. Point IDs are derived deterministically from the
// entry ID, so re-ingesting a chunk overwrites its previous point.
func (s *Store) Add(ctx context.Context, entries []index.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = entryToPoint(e)
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Query returns up to k nearest entries, closest first.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]index.Match, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]index.Match, len(resp.Result))
	for i, pt := range resp.Result {
		matches[i] = pointToMatch(pt)
	}
	return matches, nil
}

// Count reports the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// pointID maps a chunk ID onto the UUID space Qdrant requires for point
// IDs. SHA1-based UUIDs are deterministic per input.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func entryToPoint(e index.Entry) *pb.PointStruct {
	payload := map[string]*pb.Value{
		"content": {Kind: &pb.Value_StringValue{StringValue: e.Document}},
		"id":      {Kind: &pb.Value_StringValue{StringValue: e.ID}},
	}
	for k, v := range index.SanitizeMetadata(e.Metadata) {
		payload[k] = toValue(v)
	}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(e.ID)}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Embedding}}},
		Payload: payload,
	}
}

func pointToMatch(pt *pb.ScoredPoint) index.Match {
	m := index.Match{
		ID:       pt.Id.GetUuid(),
		Distance: pt.Score,
		Metadata: make(map[string]any),
	}
	for k, v := range pt.Payload {
		switch k {
		case "content":
			m.Document = v.GetStringValue()
		case "id":
			m.ID = v.GetStringValue()
		default:
			m.Metadata[k] = fromValue(v)
		}
	}
	return m
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case uint:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case uint32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case uint64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromValue(v *pb.Value) any {
	switch kind := v.Kind.(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return int(kind.IntegerValue)
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	default:
		return nil
	}
}

var _ index.Store = (*Store)(nil)
