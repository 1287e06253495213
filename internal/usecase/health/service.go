// Package health aggregates liveness checks for the readiness endpoint.
package health

import "context"

// StoreChecker checks database liveness.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks the embedding provider.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// Service runs the health checks.
type Service struct {
	store    StoreChecker
	embedder EmbeddingChecker
}

// New creates the health service.
func New(store StoreChecker, embedder EmbeddingChecker) *Service {
	return &Service{store: store, embedder: embedder}
}

// Status is one component's health state.
type Status struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report is the aggregate health snapshot.
type Report struct {
	Healthy   bool   `json:"healthy"`
	Store     Status `json:"store"`
	Embedding Status `json:"embedding"`
}

// Check runs all checks and reports per-component state.
func (s *Service) Check(ctx context.Context) Report {
	report := Report{Healthy: true}

	report.Store.Healthy = true
	if err := s.store.Ping(ctx); err != nil {
		report.Store = Status{Healthy: false, Error: err.Error()}
		report.Healthy = false
	}

	report.Embedding.Healthy = true
	if s.embedder != nil {
		if err := s.embedder.HealthCheck(ctx); err != nil {
			report.Embedding = Status{Healthy: false, Error: err.Error()}
			report.Healthy = false
		}
	}

	return report
}
