// Package semantic mirrors segment embeddings into Qdrant. The graph
// store stays the source of truth; the mirror exists for deployments
// that want ANN search or vector ops without loading the graph cluster.
package semantic

import (
	"context"
	"fmt"

	"github.com/loreweave/loreweave/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Mirror is the sole owner of all Qdrant operations.
type Mirror struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string) (*Mirror, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Mirror{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a Mirror on pre-made clients, mainly for tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *Mirror {
	return &Mirror{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (m *Mirror) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (m *Mirror) EnsureCollection(ctx context.Context, dims int) error {
	list, err := m.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == m.collection {
			return nil
		}
	}

	_, err = m.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", m.collection, err)
	}
	return nil
}

// DeleteCollection drops the whole collection.
func (m *Mirror) DeleteCollection(ctx context.Context) error {
	_, err := m.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: m.collection})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", m.collection, err)
	}
	return nil
}

// UpsertSegments mirrors a document's embedded segments. Segments whose
// embedding failed are skipped; they live only in the graph until a
// backfill succeeds.
func (m *Mirror) UpsertSegments(ctx context.Context, doc domain.Document, segments []domain.Segment) error {
	var points []*pb.PointStruct
	for _, seg := range segments {
		if seg.EmbeddingFailed || seg.Embedding == nil {
			continue
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: seg.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: seg.Embedding}},
			},
			Payload: map[string]*pb.Value{
				"content": {Kind: &pb.Value_StringValue{StringValue: seg.Text}},
				"doc_id":  {Kind: &pb.Value_StringValue{StringValue: doc.ID}},
				"source":  {Kind: &pb.Value_StringValue{StringValue: doc.Source}},
				"ordinal": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(seg.Index)}},
			},
		})
	}
	if len(points) == 0 {
		return nil
	}

	wait := true
	_, err := m.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByDocument removes all mirrored points for a document. Used on
// re-ingestion and document deletion.
func (m *Mirror) DeleteByDocument(ctx context.Context, docID string) error {
	wait := true
	_, err := m.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: m.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch("doc_id", docID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// SearchResult is a single mirrored vector hit.
type SearchResult struct {
	SegmentID string  `json:"id"`
	Score     float32 `json:"score"`
	Content   string  `json:"content"`
	DocID     string  `json:"doc_id"`
	Ordinal   int64   `json:"ordinal"`
}

// Search performs k-NN similarity search over mirrored segments.
func (m *Mirror) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	resp, err := m.points.Search(ctx, &pb.SearchPoints{
		CollectionName: m.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			SegmentID: r.GetId().GetUuid(),
			Score:     r.GetScore(),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "content":
				sr.Content = val.GetStringValue()
			case "doc_id":
				sr.DocID = val.GetStringValue()
			case "ordinal":
				sr.Ordinal = val.GetIntegerValue()
			}
		}
		results[i] = sr
	}
	return results, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
