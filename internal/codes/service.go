package codes

import (
	"context"
	"sync"

	"trackerbridge/internal/logger"
)

// Resolver hands scripts the code translations for one coding system.
type Resolver interface {
	MapForSystem(ctx context.Context, system string) (map[string]string, error)
}

// Service caches per-system mappings with a TTL-free cache; mappings change
// through the admin tooling followed by a reload, not mid-flight.
type Service struct {
	repo   Repository
	logger logger.Logger

	mu     sync.RWMutex
	cached map[string]map[string]string
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
		cached: make(map[string]map[string]string),
	}
}

func (s *Service) MapForSystem(ctx context.Context, system string) (map[string]string, error) {
	s.mu.RLock()
	m, ok := s.cached[system]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	mappings, err := s.repo.ListBySystem(ctx, system)
	if err != nil {
		return nil, err
	}

	m = make(map[string]string, len(mappings))
	for _, mapping := range mappings {
		m[mapping.Code] = mapping.MappedCode
	}

	s.mu.Lock()
	s.cached[system] = m
	s.mu.Unlock()

	s.logger.DebugwCtx(ctx, "Loaded code mappings",
		"system", system,
		"count", len(m),
	)
	return m, nil
}

// Invalidate drops the cached mappings so the next lookup re-reads Mongo.
func (s *Service) Invalidate(system string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if system == "" {
		s.cached = make(map[string]map[string]string)
		return
	}
	delete(s.cached, system)
}
