package inbound

import (
	"context"
	"time"

	"trackerbridge/internal/broker"
	"trackerbridge/internal/config"
	"trackerbridge/internal/engine"
	"trackerbridge/internal/fhir"
	"trackerbridge/internal/lock"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/rule"
)

// RuleMatcher yields the enabled rules for a resource type in priority
// order.
type RuleMatcher interface {
	Match(resourceType string) []rule.Rule
}

// Transformer is the engine surface the inbound pipeline drives.
type Transformer interface {
	Transform(ctx context.Context, doc *fhir.Document, r *rule.Rule, vars engine.Variables) (*engine.Outcome, error)
	TransformDeletion(ctx context.Context, r *rule.Rule, resourceID string) (*engine.DeleteOutcome, error)
}

// Service processes one document envelope at a time: match rules, open a
// lock scope, run the engine per rule until one produces an outcome, publish
// it. Concurrency comes from Kafka partitions, not from this service.
type Service struct {
	rules    RuleMatcher
	engine   Transformer
	producer broker.Producer
	cfg      config.KafkaConfig
	logger   logger.Logger
}

func NewService(rules RuleMatcher, eng Transformer, producer broker.Producer, cfg config.KafkaConfig, log logger.Logger) *Service {
	return &Service{
		rules:    rules,
		engine:   eng,
		producer: producer,
		cfg:      cfg,
		logger:   log,
	}
}

// Handle is the broker handler for the document topic.
func (s *Service) Handle(ctx context.Context, envelope fhir.DocumentEnvelope) error {
	ctx, locks := lock.NewContext(ctx)
	defer func() {
		if err := locks.Close(ctx); err != nil {
			s.logger.ErrorwCtx(ctx, "Failed to release subject locks",
				"error", err,
			)
		}
	}()

	if envelope.Deleted {
		return s.handleDeletion(ctx, envelope)
	}
	return s.handleDocument(ctx, envelope)
}

func (s *Service) handleDocument(ctx context.Context, envelope fhir.DocumentEnvelope) error {
	doc := envelope.Document
	rules := s.rules.Match(string(doc.Kind))
	if len(rules) == 0 {
		s.logger.DebugwCtx(ctx, "No rules configured for resource type",
			"resource_type", doc.Kind,
		)
		return nil
	}

	vars := engine.Variables{
		// A redelivered envelope forces non-cached reads so the retry sees
		// what the failed attempt may have half-persisted.
		Refresh: envelope.Metadata.Attempt > 0,
	}

	for i := range rules {
		r := &rules[i]
		outcome, err := s.engine.Transform(ctx, &doc, r, vars)
		if err != nil {
			return err
		}
		if outcome == nil {
			continue
		}

		s.logger.InfowCtx(ctx, "Document transformed",
			"rule_id", r.ID,
			"created", outcome.Created,
			"updated", outcome.Updated,
		)
		return s.publishOutcome(ctx, envelope, OutcomeMessage{
			EnvelopeID:  envelope.ID,
			DocumentID:  doc.ID,
			RuleID:      r.ID,
			Outcome:     outcome,
			ProcessedAt: time.Now().UTC(),
		})
	}

	s.logger.DebugwCtx(ctx, "No rule applicable for document",
		"resource_type", doc.Kind,
		"rules_tried", len(rules),
	)
	return nil
}

func (s *Service) handleDeletion(ctx context.Context, envelope fhir.DocumentEnvelope) error {
	doc := envelope.Document
	for _, r := range s.rules.Match(string(doc.Kind)) {
		r := r
		outcome, err := s.engine.TransformDeletion(ctx, &r, doc.ID)
		if err != nil {
			return err
		}
		if outcome == nil {
			continue
		}

		s.logger.InfowCtx(ctx, "Deletion transformed",
			"rule_id", r.ID,
			"deleted", outcome.Deleted,
			"cleared", outcome.Cleared,
		)
		return s.publishOutcome(ctx, envelope, OutcomeMessage{
			EnvelopeID:    envelope.ID,
			DocumentID:    doc.ID,
			RuleID:        r.ID,
			DeleteOutcome: outcome,
			ProcessedAt:   time.Now().UTC(),
		})
	}
	return nil
}

func (s *Service) publishOutcome(ctx context.Context, envelope fhir.DocumentEnvelope, msg OutcomeMessage) error {
	if s.producer == nil || s.cfg.OutcomeTopic == "" {
		return nil
	}
	return s.producer.Publish(ctx, s.cfg.OutcomeTopic, envelope.Document.ID, msg)
}

// OutcomeMessage is the output-topic wire format. Exactly one of Outcome and
// DeleteOutcome is set.
type OutcomeMessage struct {
	EnvelopeID    string                `json:"envelope_id"`
	DocumentID    string                `json:"document_id"`
	RuleID        string                `json:"rule_id"`
	Outcome       *engine.Outcome       `json:"outcome,omitempty"`
	DeleteOutcome *engine.DeleteOutcome `json:"delete_outcome,omitempty"`
	ProcessedAt   time.Time             `json:"processed_at"`
}
