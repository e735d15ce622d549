package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// CaseTemplateRepository implements port.CaseTemplateRepository over sqlite.
type CaseTemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCaseTemplateRepository creates a new case template repository.
func NewCaseTemplateRepository(db *sql.DB, logger *zap.Logger) port.CaseTemplateRepository {
	return &CaseTemplateRepository{db: db, logger: logger}
}

func (r *CaseTemplateRepository) Create(ctx context.Context, tpl *entity.CaseTemplate) error {
	stages, err := marshalColumn(tpl.Stages)
	if err != nil {
		return err
	}
	transitions, err := marshalColumn(tpl.Transitions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO case_templates (
			id, tenant_id, name, name_localized, description, category, mode,
			stages, transitions, is_active, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		tpl.ID, tpl.TenantID, tpl.Name, tpl.NameLocalized, tpl.Description,
		tpl.Category, string(tpl.Mode), stages, transitions, tpl.IsActive,
		tpl.Version, tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create case template", zap.Error(err))
		return constraintConflict(err, "case template %s already exists", tpl.ID)
	}
	return nil
}

func (r *CaseTemplateRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.CaseTemplate, error) {
	query := `
		SELECT id, tenant_id, name, name_localized, description, category, mode,
			stages, transitions, is_active, version, created_at, updated_at
		FROM case_templates
		WHERE tenant_id = ? AND id = ?
	`
	tpl, err := scanCaseTemplate(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NewNotFound("case template %s not found", id)
	}
	if err != nil {
		r.logger.Error("failed to get case template", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("get case template: %w", err)
	}
	return tpl, nil
}

// Update persists a template, guarded by the version it was read at.
func (r *CaseTemplateRepository) Update(ctx context.Context, tpl *entity.CaseTemplate) error {
	stages, err := marshalColumn(tpl.Stages)
	if err != nil {
		return err
	}
	transitions, err := marshalColumn(tpl.Transitions)
	if err != nil {
		return err
	}

	query := `
		UPDATE case_templates
		SET name = ?, name_localized = ?, description = ?, category = ?, mode = ?,
			stages = ?, transitions = ?, is_active = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		tpl.Name, tpl.NameLocalized, tpl.Description, tpl.Category, string(tpl.Mode),
		stages, transitions, tpl.IsActive, tpl.UpdatedAt,
		tpl.TenantID, tpl.ID, tpl.Version,
	)
	if err != nil {
		r.logger.Error("failed to update case template", zap.String("id", tpl.ID), zap.Error(err))
		return fmt.Errorf("update case template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case template: %w", err)
	}
	if affected == 0 {
		return workflow.NewConflict("case template %s was modified concurrently", tpl.ID)
	}
	tpl.Version++
	return nil
}

func (r *CaseTemplateRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM case_templates WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		r.logger.Error("failed to delete case template", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete case template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete case template: %w", err)
	}
	if affected == 0 {
		return workflow.NewNotFound("case template %s not found", id)
	}
	return nil
}

func (r *CaseTemplateRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.CaseTemplate, error) {
	query := `
		SELECT id, tenant_id, name, name_localized, description, category, mode,
			stages, transitions, is_active, version, created_at, updated_at
		FROM case_templates
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list case templates: %w", err)
	}
	defer rows.Close()

	var tpls []*entity.CaseTemplate
	for rows.Next() {
		tpl, err := scanCaseTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("list case templates: %w", err)
		}
		tpls = append(tpls, tpl)
	}
	return tpls, rows.Err()
}

func scanCaseTemplate(row rowScanner) (*entity.CaseTemplate, error) {
	var tpl entity.CaseTemplate
	var mode, stages, transitions string
	err := row.Scan(
		&tpl.ID, &tpl.TenantID, &tpl.Name, &tpl.NameLocalized, &tpl.Description,
		&tpl.Category, &mode, &stages, &transitions, &tpl.IsActive,
		&tpl.Version, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tpl.Mode = entity.TransitionMode(mode)
	tpl.Stages = make(map[string]*entity.Stage)
	if err := unmarshalColumn(stages, &tpl.Stages); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(transitions, &tpl.Transitions); err != nil {
		return nil, err
	}
	return &tpl, nil
}
