// Package vectorindex implements the two-collection ANN capability
// (spec.md 4.E): insert/flush/search over light and dense vector
// collections, cosine metric, results ordered by descending score.
package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadOriginalID stores the caller's chunk id in the point payload:
// Qdrant point ids must be a UUID or a positive integer, but chunk ids are
// arbitrary strings (doc_id#index), so we derive a deterministic UUID from
// the chunk id and keep the original around for result mapping.
const payloadOriginalID = "_chunk_id"
const payloadDocID = "_doc_id"

// Hit is one scored result from Search.
type Hit struct {
	ChunkID string
	Score   float64
}

// Collection wraps one Qdrant collection for one embedding dimensionality.
type Collection struct {
	client     *qdrant.Client
	collection string
	dimension  int
	pending    []*qdrant.PointStruct
}

// Index is the two-collection vector-index capability: one Collection per
// dimensionality (light, dense), sharing nothing but the Qdrant connection.
type Index struct {
	Light *Collection
	Dense *Collection
}

// Config describes the two collections to create/attach to.
type Config struct {
	DSN        string // e.g. "http://localhost:6334?api_key=..."
	LightName  string
	LightDim   int
	DenseName  string
	DenseDim   int
}

// New connects to Qdrant and ensures both collections exist with cosine
// distance, matching spec.md 4.E's metric requirement.
func New(ctx context.Context, cfg Config) (*Index, error) {
	client, err := newClient(cfg.DSN)
	if err != nil {
		return nil, err
	}

	light, err := newCollection(ctx, client, cfg.LightName, cfg.LightDim)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: light collection: %w", err)
	}
	dense, err := newCollection(ctx, client, cfg.DenseName, cfg.DenseDim)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dense collection: %w", err)
	}
	return &Index{Light: light, Dense: dense}, nil
}

func newClient(dsn string) (*qdrant.Client, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: invalid port in dsn: %w", err)
	}
	config := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		config.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		config.APIKey = apiKey
	}
	return qdrant.NewClient(config)
}

func newCollection(ctx context.Context, client *qdrant.Client, name string, dim int) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("collection %s requires dimension > 0", name)
	}
	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}
	return &Collection{client: client, collection: name, dimension: dim}, nil
}

// Insert stages a point for this collection. It is not visible to Search
// until the next Flush.
func (c *Collection) Insert(chunkID, docID string, vector []float32) error {
	if len(vector) != c.dimension {
		return fmt.Errorf("vectorindex: vector has %d dims, collection %s wants %d", len(vector), c.collection, c.dimension)
	}
	pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
	vec := make([]float32, len(vector))
	copy(vec, vector)
	c.pending = append(c.pending, &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadOriginalID: chunkID,
			payloadDocID:      docID,
		}),
	})
	return nil
}

// Flush upserts every staged point in one call.
func (c *Collection) Flush(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points:         c.pending,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: flush %s: %w", c.collection, err)
	}
	c.pending = c.pending[:0]
	return nil
}

// Search returns up to topK nearest points by cosine similarity, ordered by
// descending score. topK >= 1500 must be supported per spec.md 4.E.
func (c *Collection) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(topK)
	res, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search %s: %w", c.collection, err)
	}

	hits := make([]Hit, 0, len(res))
	for _, r := range res {
		chunkID := ""
		if r.Payload != nil {
			if v, ok := r.Payload[payloadOriginalID]; ok {
				chunkID = v.GetStringValue()
			}
		}
		if chunkID == "" {
			continue
		}
		hits = append(hits, Hit{ChunkID: chunkID, Score: float64(r.Score)})
	}
	return hits, nil
}

// DeleteDocument removes every point belonging to docID from this
// collection (spec.md's whole-document deletion lifecycle rule).
func (c *Collection) DeleteDocument(ctx context.Context, docID string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocID, docID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete document from %s: %w", c.collection, err)
	}
	return nil
}

// DeleteDocument removes docID's points from both collections.
func (i *Index) DeleteDocument(ctx context.Context, docID string) error {
	if err := i.Light.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	return i.Dense.DeleteDocument(ctx, docID)
}

// Close releases the shared Qdrant client connection.
func (i *Index) Close() error {
	return i.Light.client.Close()
}
