package metadata

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"trackerbridge/internal/logger"
	"trackerbridge/internal/tracker"
)

// Service caches program metadata for the lifetime of the process. Program
// definitions are immutable per version, so the cache never needs
// invalidation beyond a process restart after a metadata import.
type Service struct {
	repo   Repository
	logger logger.Logger

	mu       sync.RWMutex
	programs map[string]*tracker.Program
	stages   map[string]*tracker.ProgramStage

	group singleflight.Group
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   log,
		programs: make(map[string]*tracker.Program),
		stages:   make(map[string]*tracker.ProgramStage),
	}
}

func (s *Service) GetProgram(ctx context.Context, id string) (*tracker.Program, error) {
	s.mu.RLock()
	program, ok := s.programs[id]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	result, err, _ := s.group.Do("program:"+id, func() (interface{}, error) {
		program, err := s.repo.GetProgram(ctx, id)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.programs[id] = program
		for i := range program.Stages {
			s.stages[program.Stages[i].ID] = &program.Stages[i]
		}
		s.mu.Unlock()

		s.logger.DebugwCtx(ctx, "Loaded program metadata",
			"program_id", id,
			"stages", len(program.Stages),
		)
		return program, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*tracker.Program), nil
}

func (s *Service) GetStage(ctx context.Context, id string) (*tracker.ProgramStage, error) {
	s.mu.RLock()
	stage, ok := s.stages[id]
	s.mu.RUnlock()
	if ok {
		return stage, nil
	}

	result, err, _ := s.group.Do("stage:"+id, func() (interface{}, error) {
		stage, err := s.repo.GetStage(ctx, id)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.stages[id] = stage
		s.mu.Unlock()
		return stage, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*tracker.ProgramStage), nil
}
