// Package embedding defines the embedding boundary. The consistency
// manager only depends on the Embedder interface; vector computation
// itself is an external concern.
package embedding

import "context"

// Embedder converts chunk texts into embedding vectors. Implementations
// must preserve order: result[i] embeds texts[i].
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
