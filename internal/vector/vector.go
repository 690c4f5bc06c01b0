// Package vector indexes chunk embeddings in Qdrant and serves
// similarity search over them. Point IDs are deterministic UUIDs derived
// from document ID and chunk index, so re-indexing a document overwrites
// its existing points instead of duplicating them.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"lexingest/internal/store"
)

// pointNamespace seeds the deterministic point UUIDs.
var pointNamespace = uuid.MustParse("7b1d3f7a-9c42-4f11-8d6b-2e5a90c4f3aa")

// Index is the vector store surface the pipeline and retrieval use.
type Index interface {
	EnsureCollection(ctx context.Context) error
	UpsertChunks(ctx context.Context, doc store.Document, chunks []store.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
	DeleteByDocument(ctx context.Context, docID string) error
	Close() error
}

// Hit is one search result. Distance is cosine distance: 0 for identical
// vectors, larger means less similar.
type Hit struct {
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Text         string
	PageStart    int
	PageEnd      int
	Section      string
	Distance     float64
}

// Client is the Qdrant-backed Index.
type Client struct {
	client     *qdrant.Client
	collection string
	dim        uint64
}

func NewClient(host string, port int, collection string, dim int) (*Client, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port, // gRPC port
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Client{client: c, collection: collection, dim: uint64(dim)}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnsureCollection creates the chunk collection if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	_, err = c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: c.collection,
		FieldName:      "doc_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create doc_id index: %w", err)
	}
	return nil
}

// UpsertChunks writes one point per chunk. vectors must align with chunks.
func (c *Client) UpsertChunks(ctx context.Context, doc store.Document, chunks []store.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, ch := range chunks {
		payload := map[string]any{
			"doc_id":      doc.ID,
			"doc_name":    doc.Name,
			"chunk_index": int64(ch.ChunkIndex),
			"page_start":  int64(ch.PageStart),
			"page_end":    int64(ch.PageEnd),
			"section":     sectionString(ch.SectionPath),
			"text":        ch.Text,
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(doc.ID, ch.ChunkIndex)),
			Vectors: qdrant.NewVectorsDense(vectors[i]),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Search returns the closest chunks to the query vector.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	resp, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	hits := make([]Hit, 0, len(resp))
	for _, p := range resp {
		payload := p.GetPayload()
		hits = append(hits, Hit{
			DocumentID:   payload["doc_id"].GetStringValue(),
			DocumentName: payload["doc_name"].GetStringValue(),
			ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
			Text:         payload["text"].GetStringValue(),
			PageStart:    int(payload["page_start"].GetIntegerValue()),
			PageEnd:      int(payload["page_end"].GetIntegerValue()),
			Section:      payload["section"].GetStringValue(),
			// Cosine scores come back as similarity; flip to distance
			// so lower is closer.
			Distance: 1 - float64(p.GetScore()),
		})
	}
	return hits, nil
}

// DeleteByDocument removes all points for a document.
func (c *Client) DeleteByDocument(ctx context.Context, docID string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("doc_id", docID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// PointID derives the stable UUID for a chunk.
func PointID(docID string, chunkIndex int) string {
	name := fmt.Sprintf("%s/%d", docID, chunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

func sectionString(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " > "
		}
		out += p
	}
	return out
}
