// Package embedding turns free text into fixed-dimension vectors and
// persists pull request embeddings for similarity search.
//
// The package separates three concerns:
//   - Embedder implementations (hosted Jina API or local Ollama) live in
//     subpackages and only know how to call their provider.
//   - Service wraps an Embedder with the text cleaning and dimension
//     normalization every caller needs.
//   - Store persists pull request vectors in PostgreSQL via pgvector.
package embedding

import "context"

// Embedder computes vector embeddings for documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
