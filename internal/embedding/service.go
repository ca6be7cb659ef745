package embedding

import (
	"context"
	"fmt"
	"log/slog"
)

// Service wraps an Embedder with the cleaning and dimension
// normalization shared by every caller.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	embedder Embedder
	dim      int
	logger   *slog.Logger
}

// NewService creates an embedding Service targeting the given vector
// dimension.
func NewService(embedder Embedder, dim int, logger *slog.Logger) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, dim: dim, logger: logger}, nil
}

// Embed cleans and embeds texts, returning one vector per input in the
// same order. When the batch call fails, each text is retried on its
// own; texts that still fail get a nil slot instead of aborting the
// run, so one poisoned document cannot sink a whole sync.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = CleanText(t)
	}

	vecs, err := s.embedder.EmbedDocuments(ctx, cleaned)
	if err == nil {
		if len(vecs) != len(cleaned) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(cleaned))
		}
		for i := range vecs {
			vecs[i] = s.normalize(vecs[i])
		}
		return vecs, nil
	}

	s.logger.Warn("batch embedding failed, retrying per item",
		"count", len(cleaned), "error", err)

	out := make([][]float32, len(cleaned))
	for i, text := range cleaned {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		single, itemErr := s.embedder.EmbedDocuments(ctx, []string{text})
		if itemErr != nil || len(single) != 1 {
			s.logger.Warn("skipping text that failed to embed",
				"index", i, "error", itemErr)
			continue
		}
		out[i] = s.normalize(single[0])
	}
	return out, nil
}

// EmbedOne cleans and embeds a single query text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.EmbedQuery(ctx, CleanText(text))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.normalize(vec), nil
}

// Dimension returns the vector dimension the service normalizes to.
func (s *Service) Dimension() int {
	return s.dim
}

func (s *Service) normalize(vec []float32) []float32 {
	if len(vec) != s.dim {
		s.logger.Warn("normalizing embedding dimension",
			"got", len(vec), "want", s.dim)
	}
	return NormalizeDimension(vec, s.dim)
}
