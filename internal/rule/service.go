package rule

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackerbridge/internal/config"
	"trackerbridge/internal/logger"
	"trackerbridge/pkg/metrics"
)

// Service owns the rule lifecycle: CRUD through the repository and an
// in-memory active-rule set the inbound pipeline matches against. The set is
// refreshed by a jittered background reloader so a fleet of consumers does
// not hammer Postgres at the same instant.
type Service struct {
	repo      Repository
	validator *Validator
	cfg       config.RulesConfig
	logger    logger.Logger

	rulesMu sync.RWMutex
	rules   []Rule
}

func NewService(repo Repository, validator *Validator, cfg config.RulesConfig, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
		logger:    log,
		rules:     make([]Rule, 0),
	}
}

// Match returns the enabled rules for a resource type in priority order,
// from the cached set.
func (s *Service) Match(resourceType string) []Rule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	var matched []Rule
	for _, r := range s.rules {
		if r.Enabled && r.ResourceType == resourceType {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})
	return matched
}

func (s *Service) Create(ctx context.Context, req CreateRuleRequest) (*Rule, error) {
	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	importEnabled := true
	if req.ImportEnabled != nil {
		importEnabled = *req.ImportEnabled
	}
	now := time.Now().UTC()
	rule := &Rule{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Kind:          req.Kind,
		ResourceType:  req.ResourceType,
		ProgramID:     req.ProgramID,
		StageID:       req.StageID,
		Priority:      req.Priority,
		Enabled:       enabled,
		ImportEnabled: importEnabled,
		ExportEnabled: req.ExportEnabled,
		CreateEnabled: req.CreateEnabled,
		UpdateEnabled: req.UpdateEnabled,
		DeleteEnabled: req.DeleteEnabled,

		EnrollmentCreateEnabled: req.EnrollmentCreateEnabled,
		EventCreateEnabled:      req.EventCreateEnabled,

		Grouping:     req.Grouping,
		DataElements: req.DataElements,

		ApplicableEnrollmentStatuses: req.ApplicableEnrollmentStatuses,
		ApplicableEventStatuses:      req.ApplicableEventStatuses,

		BeforePeriodDays: req.BeforePeriodDays,
		AfterPeriodDays:  req.AfterPeriodDays,

		Scripts:   req.Scripts,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.InfowCtx(ctx, "Created transform rule",
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"resource_type", rule.ResourceType,
	)
	return rule, nil
}

func (s *Service) List(ctx context.Context) ([]Rule, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Rule, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error) {
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	rule, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.ImportEnabled != nil {
		rule.ImportEnabled = *req.ImportEnabled
	}
	if req.ExportEnabled != nil {
		rule.ExportEnabled = *req.ExportEnabled
	}
	if req.CreateEnabled != nil {
		rule.CreateEnabled = *req.CreateEnabled
	}
	if req.UpdateEnabled != nil {
		rule.UpdateEnabled = *req.UpdateEnabled
	}
	if req.DeleteEnabled != nil {
		rule.DeleteEnabled = *req.DeleteEnabled
	}
	if req.EnrollmentCreateEnabled != nil {
		rule.EnrollmentCreateEnabled = *req.EnrollmentCreateEnabled
	}
	if req.EventCreateEnabled != nil {
		rule.EventCreateEnabled = *req.EventCreateEnabled
	}
	if req.Grouping != nil {
		rule.Grouping = *req.Grouping
	}
	if req.DataElements != nil {
		rule.DataElements = *req.DataElements
	}
	if req.ApplicableEnrollmentStatuses != nil {
		rule.ApplicableEnrollmentStatuses = *req.ApplicableEnrollmentStatuses
	}
	if req.ApplicableEventStatuses != nil {
		rule.ApplicableEventStatuses = *req.ApplicableEventStatuses
	}
	if req.BeforePeriodDays != nil {
		rule.BeforePeriodDays = periodBound(*req.BeforePeriodDays)
	}
	if req.AfterPeriodDays != nil {
		rule.AfterPeriodDays = periodBound(*req.AfterPeriodDays)
	}
	if req.Scripts != nil {
		rule.Scripts = *req.Scripts
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.InfowCtx(ctx, "Updated transform rule",
		"rule_id", rule.ID,
	)
	return rule, nil
}

// periodBound turns an update value into a window bound; negatives clear it.
func periodBound(days int) *int {
	if days < 0 {
		return nil
	}
	return &days
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfowCtx(ctx, "Deleted transform rule",
		"rule_id", id,
	)
	return nil
}

// ReloadRules refreshes the cached active set, optionally skipping the
// startup jitter.
func (s *Service) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	rules, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	active := rules[:0:0]
	for _, r := range rules {
		if r.Enabled {
			active = append(active, r)
		}
	}

	s.rulesMu.Lock()
	s.rules = active
	s.rulesMu.Unlock()

	metrics.SetActiveRules(len(active))
	s.logger.InfowCtx(ctx, "Successfully reloaded rules",
		"rules_count", len(active),
	)
	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds == 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartReloader blocks, refreshing the rule cache on the configured interval
// until the context is cancelled.
func (s *Service) StartReloader(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	if err := s.ReloadRules(ctx, true); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to reload rules",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
