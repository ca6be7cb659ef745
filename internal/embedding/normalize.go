package embedding

// NormalizeDimension forces vec to exactly dim entries. Shorter vectors
// are zero-padded, longer ones truncated. The pgvector columns are
// fixed at one dimension, so every vector must match regardless of
// which provider produced it.
func NormalizeDimension(vec []float32, dim int) []float32 {
	switch {
	case len(vec) == dim:
		return vec
	case len(vec) < dim:
		padded := make([]float32, dim)
		copy(padded, vec)
		return padded
	default:
		return vec[:dim]
	}
}
