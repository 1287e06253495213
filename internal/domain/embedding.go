package domain

import "context"

// Embedder vectorizes a batch of texts. Implementations must either
// return one vector per input text or an error — never a partial batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthChecker is implemented by providers that can verify their own
// availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
