package embedding

import (
	"context"
	"fmt"
	"math"

	embeddingclient "github.com/hsn0918/rag/internal/clients/embedding"
)

// HTTPEmbedder adapts the teacher's OpenAI-compatible embedding HTTP client
// (internal/clients/embedding.Client) to the Embedder interface, resized to
// the two fixed dimensionalities this package's consumers depend on. This
// is the "trained model" swap HashEmbedder's doc comment names: a
// production deployment wires this in place of the hash-based reference
// implementation without touching any caller.
type HTTPEmbedder struct {
	client    embeddingclient.Embedder
	lightModel string
	denseModel string
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder builds an HTTPEmbedder. lightModel and denseModel may be
// the same model name if the deployment only runs one embedding service.
func NewHTTPEmbedder(client embeddingclient.Embedder, lightModel, denseModel string) *HTTPEmbedder {
	return &HTTPEmbedder{client: client, lightModel: lightModel, denseModel: denseModel}
}

func (e *HTTPEmbedder) EmbedLight(ctx context.Context, text string) ([]float32, error) {
	return e.embed(e.lightModel, text, LightDim)
}

func (e *HTTPEmbedder) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	return e.embed(e.denseModel, text, DenseDim)
}

func (e *HTTPEmbedder) embed(model, text string, dim int) ([]float32, error) {
	resp, err := e.client.CreateEmbeddingWithDefaults(model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: http embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response from model %s", model)
	}
	return fitDimension(resp.Data[0].Embedding, dim), nil
}

// fitDimension truncates or zero-pads v to exactly dim entries, then
// L2-normalizes, so callers always get the fixed-length vectors spec.md §3
// requires regardless of the upstream model's native dimensionality.
func fitDimension(v []float64, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim && i < len(v); i++ {
		out[i] = float32(v[i])
	}
	var sumSquares float64
	for _, x := range out {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return out
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range out {
		out[i] /= norm
	}
	return out
}
