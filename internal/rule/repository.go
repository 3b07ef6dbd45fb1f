package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "trackerbridge/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	List(ctx context.Context) ([]Rule, error)
	ListActiveByResourceType(ctx context.Context, resourceType string) ([]Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const ruleColumns = `
	id, name, kind, resource_type, program_id, stage_id, priority, enabled,
	import_enabled, export_enabled, create_enabled, update_enabled, delete_enabled,
	enrollment_create_enabled, event_create_enabled, grouping,
	data_elements, enrollment_statuses, event_statuses,
	before_period_days, after_period_days, scripts, created_at, updated_at
`

func (r *PostgresRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	dataElements, enrollmentStatuses, eventStatuses, scripts, err := marshalRuleFields(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transform_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Kind, rule.ResourceType,
		nullString(rule.ProgramID), nullString(rule.StageID), rule.Priority, rule.Enabled,
		rule.ImportEnabled, rule.ExportEnabled, rule.CreateEnabled, rule.UpdateEnabled, rule.DeleteEnabled,
		rule.EnrollmentCreateEnabled, rule.EventCreateEnabled, rule.Grouping,
		dataElements, enrollmentStatuses, eventStatuses,
		rule.BeforePeriodDays, rule.AfterPeriodDays, scripts, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithMessage("rule with name '%s' already exists", rule.Name)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transform_rules WHERE id = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transform_rules ORDER BY priority, name`
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) ListActiveByResourceType(ctx context.Context, resourceType string) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM transform_rules
		WHERE enabled = true AND resource_type = $1
		ORDER BY priority, name
	`
	return r.queryRules(ctx, query, resourceType)
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	dataElements, enrollmentStatuses, eventStatuses, scripts, err := marshalRuleFields(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE transform_rules SET
			name = $2, kind = $3, resource_type = $4, program_id = $5, stage_id = $6,
			priority = $7, enabled = $8,
			import_enabled = $9, export_enabled = $10, create_enabled = $11,
			update_enabled = $12, delete_enabled = $13,
			enrollment_create_enabled = $14, event_create_enabled = $15, grouping = $16,
			data_elements = $17, enrollment_statuses = $18, event_statuses = $19,
			before_period_days = $20, after_period_days = $21, scripts = $22,
			updated_at = $23
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Kind, rule.ResourceType,
		nullString(rule.ProgramID), nullString(rule.StageID), rule.Priority, rule.Enabled,
		rule.ImportEnabled, rule.ExportEnabled, rule.CreateEnabled, rule.UpdateEnabled, rule.DeleteEnabled,
		rule.EnrollmentCreateEnabled, rule.EventCreateEnabled, rule.Grouping,
		dataElements, enrollmentStatuses, eventStatuses,
		rule.BeforePeriodDays, rule.AfterPeriodDays, scripts, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithMessage("rule %s not found", rule.ID)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transform_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithMessage("rule %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule               Rule
		programID, stageID sql.NullString
		dataElements       []byte
		enrollmentStatuses []byte
		eventStatuses      []byte
		scripts            []byte
	)

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Kind, &rule.ResourceType, &programID, &stageID,
		&rule.Priority, &rule.Enabled,
		&rule.ImportEnabled, &rule.ExportEnabled, &rule.CreateEnabled,
		&rule.UpdateEnabled, &rule.DeleteEnabled,
		&rule.EnrollmentCreateEnabled, &rule.EventCreateEnabled, &rule.Grouping,
		&dataElements, &enrollmentStatuses, &eventStatuses,
		&rule.BeforePeriodDays, &rule.AfterPeriodDays, &scripts,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.ProgramID = programID.String
	rule.StageID = stageID.String

	if len(dataElements) > 0 {
		if err := json.Unmarshal(dataElements, &rule.DataElements); err != nil {
			return nil, fmt.Errorf("failed to decode data elements: %w", err)
		}
	}
	if len(enrollmentStatuses) > 0 {
		if err := json.Unmarshal(enrollmentStatuses, &rule.ApplicableEnrollmentStatuses); err != nil {
			return nil, fmt.Errorf("failed to decode enrollment statuses: %w", err)
		}
	}
	if len(eventStatuses) > 0 {
		if err := json.Unmarshal(eventStatuses, &rule.ApplicableEventStatuses); err != nil {
			return nil, fmt.Errorf("failed to decode event statuses: %w", err)
		}
	}
	if len(scripts) > 0 {
		if err := json.Unmarshal(scripts, &rule.Scripts); err != nil {
			return nil, fmt.Errorf("failed to decode scripts: %w", err)
		}
	}

	return &rule, nil
}

func marshalRuleFields(rule *Rule) (dataElements, enrollmentStatuses, eventStatuses, scripts []byte, err error) {
	if dataElements, err = json.Marshal(rule.DataElements); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode data elements: %w", err)
	}
	if enrollmentStatuses, err = json.Marshal(rule.ApplicableEnrollmentStatuses); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode enrollment statuses: %w", err)
	}
	if eventStatuses, err = json.Marshal(rule.ApplicableEventStatuses); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode event statuses: %w", err)
	}
	if scripts, err = json.Marshal(rule.Scripts); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode scripts: %w", err)
	}
	return dataElements, enrollmentStatuses, eventStatuses, scripts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
