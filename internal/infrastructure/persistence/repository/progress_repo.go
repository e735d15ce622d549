package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// ProgressRepository implements port.ProgressRepository over sqlite. The
// (tenant_id, case_id) unique index enforces one progress record per case.
type ProgressRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *sql.DB, logger *zap.Logger) port.ProgressRepository {
	return &ProgressRepository{db: db, logger: logger}
}

func (r *ProgressRepository) Create(ctx context.Context, progress *entity.StageProgress) error {
	stages, transitions, requirements, history, err := marshalProgressColumns(progress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO case_progress (
			id, tenant_id, case_id, template_id, status, current_stage_id, mode,
			stages, transitions, completed_requirements, history,
			started_at, started_by, completed_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		progress.ID, progress.TenantID, progress.CaseID, progress.TemplateID,
		string(progress.Status), progress.CurrentStageID, string(progress.Mode),
		stages, transitions, requirements, history,
		progress.StartedAt, progress.StartedBy, progress.CompletedAt,
		progress.Version, progress.CreatedAt, progress.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create progress record", zap.Error(err))
		return constraintConflict(err, "case %s already has a progress record", progress.CaseID)
	}
	return nil
}

func (r *ProgressRepository) GetByCaseID(ctx context.Context, tenantID, caseID string) (*entity.StageProgress, error) {
	progress, err := scanProgress(r.db.QueryRowContext(ctx,
		progressSelect+" WHERE tenant_id = ? AND case_id = ?", tenantID, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NewNotFound("no progress record for case %s", caseID)
	}
	if err != nil {
		r.logger.Error("failed to get progress record", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return progress, nil
}

func (r *ProgressRepository) CountByTemplate(ctx context.Context, tenantID, templateID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM case_progress WHERE tenant_id = ? AND template_id = ?",
		tenantID, templateID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count progress records: %w", err)
	}
	return count, nil
}

// AtomicUpdate mirrors InstanceRepository.AtomicUpdate for progress records.
func (r *ProgressRepository) AtomicUpdate(
	ctx context.Context,
	tenantID, caseID string,
	expected []entity.CaseStatus,
	mutate func(*entity.StageProgress) error,
) (*entity.StageProgress, error) {
	progress, err := r.GetByCaseID(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	if len(expected) > 0 && !caseStatusIn(progress.Status, expected) {
		return nil, workflow.NewInvalidState("case %s progress is %s", caseID, progress.Status)
	}

	readVersion := progress.Version
	if err := mutate(progress); err != nil {
		if errors.Is(err, port.ErrNoChange) {
			return progress, nil
		}
		return nil, err
	}

	stages, transitions, requirements, history, err := marshalProgressColumns(progress)
	if err != nil {
		return nil, err
	}

	progress.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE case_progress
		SET status = ?, current_stage_id = ?, stages = ?, transitions = ?,
			completed_requirements = ?, history = ?, completed_at = ?,
			version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND case_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(progress.Status), progress.CurrentStageID, stages, transitions,
		requirements, history, progress.CompletedAt, progress.UpdatedAt,
		tenantID, caseID, readVersion,
	)
	if err != nil {
		r.logger.Error("failed to update progress record", zap.String("case_id", caseID), zap.Error(err))
		return nil, fmt.Errorf("update progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	if affected == 0 {
		return nil, workflow.NewConflict("progress for case %s was modified concurrently", caseID)
	}
	progress.Version = readVersion + 1
	return progress, nil
}

const progressSelect = `
	SELECT id, tenant_id, case_id, template_id, status, current_stage_id, mode,
		stages, transitions, completed_requirements, history,
		started_at, started_by, completed_at, version, created_at, updated_at
	FROM case_progress`

func scanProgress(row rowScanner) (*entity.StageProgress, error) {
	var progress entity.StageProgress
	var status, mode, stages, transitions, requirements, history string
	var completedAt sql.NullTime
	err := row.Scan(
		&progress.ID, &progress.TenantID, &progress.CaseID, &progress.TemplateID,
		&status, &progress.CurrentStageID, &mode,
		&stages, &transitions, &requirements, &history,
		&progress.StartedAt, &progress.StartedBy, &completedAt,
		&progress.Version, &progress.CreatedAt, &progress.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	progress.Status = entity.CaseStatus(status)
	progress.Mode = entity.TransitionMode(mode)
	progress.Stages = make(map[string]*entity.Stage)
	if err := unmarshalColumn(stages, &progress.Stages); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(transitions, &progress.Transitions); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(requirements, &progress.CompletedRequirements); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(history, &progress.History); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		progress.CompletedAt = &completedAt.Time
	}
	return &progress, nil
}

func marshalProgressColumns(p *entity.StageProgress) (stages, transitions, requirements, history string, err error) {
	if stages, err = marshalColumn(p.Stages); err != nil {
		return
	}
	if transitions, err = marshalColumn(p.Transitions); err != nil {
		return
	}
	if p.CompletedRequirements == nil {
		requirements = "[]"
	} else if requirements, err = marshalColumn(p.CompletedRequirements); err != nil {
		return
	}
	history, err = marshalColumn(p.History)
	return
}

func caseStatusIn(status entity.CaseStatus, set []entity.CaseStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
