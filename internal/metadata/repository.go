package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "trackerbridge/pkg/errors"

	"trackerbridge/internal/tracker"
)

// Repository reads program metadata. Definitions are owned by the registry
// import tooling; the engine only ever looks them up.
type Repository interface {
	GetProgram(ctx context.Context, id string) (*tracker.Program, error)
	GetStage(ctx context.Context, id string) (*tracker.ProgramStage, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetProgram(ctx context.Context, id string) (*tracker.Program, error) {
	query := `
		SELECT id, name, registration,
		       disallow_future_enrollment_date, disallow_future_incident_date,
		       tracked_attributes
		FROM programs
		WHERE id = $1
	`

	var (
		program           tracker.Program
		trackedAttributes []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&program.ID, &program.Name, &program.Registration,
		&program.DisallowFutureEnrollmentDate, &program.DisallowFutureIncidentDate,
		&trackedAttributes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrMapping.WithMessage("program %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program: %w", err)
	}

	if len(trackedAttributes) > 0 {
		if err := json.Unmarshal(trackedAttributes, &program.TrackedAttributes); err != nil {
			return nil, fmt.Errorf("failed to decode tracked attributes: %w", err)
		}
	}

	stages, err := r.stagesForProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	program.Stages = stages

	return &program, nil
}

func (r *PostgresRepository) GetStage(ctx context.Context, id string) (*tracker.ProgramStage, error) {
	query := `
		SELECT id, program_id, name, repeatable, generated_by_enrollment_date,
		       min_days_from_start, data_elements, capture_coordinates,
		       creation_enabled, default_status
		FROM program_stages
		WHERE id = $1
	`

	stage, err := scanStage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrMapping.WithMessage("program stage %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program stage: %w", err)
	}
	return stage, nil
}

func (r *PostgresRepository) stagesForProgram(ctx context.Context, programID string) ([]tracker.ProgramStage, error) {
	query := `
		SELECT id, program_id, name, repeatable, generated_by_enrollment_date,
		       min_days_from_start, data_elements, capture_coordinates,
		       creation_enabled, default_status
		FROM program_stages
		WHERE program_id = $1
		ORDER BY sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to list program stages: %w", err)
	}
	defer rows.Close()

	var stages []tracker.ProgramStage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan program stage: %w", err)
		}
		stages = append(stages, *stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate program stages: %w", err)
	}
	return stages, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStage(row rowScanner) (*tracker.ProgramStage, error) {
	var (
		stage         tracker.ProgramStage
		dataElements  []byte
		defaultStatus sql.NullString
	)
	err := row.Scan(
		&stage.ID, &stage.ProgramID, &stage.Name, &stage.Repeatable,
		&stage.GeneratedByEnrollmentDate, &stage.MinDaysFromStart,
		&dataElements, &stage.CaptureCoordinates, &stage.CreationEnabled,
		&defaultStatus,
	)
	if err != nil {
		return nil, err
	}

	if len(dataElements) > 0 {
		if err := json.Unmarshal(dataElements, &stage.DataElements); err != nil {
			return nil, fmt.Errorf("failed to decode data elements: %w", err)
		}
	}
	if defaultStatus.Valid {
		stage.DefaultStatus = tracker.EventStatus(defaultStatus.String)
	} else {
		stage.DefaultStatus = tracker.EventActive
	}
	return &stage, nil
}
