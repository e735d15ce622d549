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

// DefinitionRepository implements port.DefinitionRepository over sqlite,
// with the step arena persisted as a JSON column.
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

func (r *DefinitionRepository) Create(ctx context.Context, def *entity.Definition) error {
	steps, err := marshalColumn(def.Steps)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions (
			id, tenant_id, name, name_localized, description, entity_type,
			steps, is_active, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.TenantID, def.Name, def.NameLocalized, def.Description,
		def.EntityType, steps, def.IsActive, def.Version, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create definition", zap.Error(err))
		return constraintConflict(err, "definition %s already exists", def.ID)
	}
	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.Definition, error) {
	query := `
		SELECT id, tenant_id, name, name_localized, description, entity_type,
			steps, is_active, version, created_at, updated_at
		FROM workflow_definitions
		WHERE tenant_id = ? AND id = ?
	`
	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NewNotFound("definition %s not found", id)
	}
	if err != nil {
		r.logger.Error("failed to get definition", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return def, nil
}

// Update persists a definition, guarded by the version it was read at.
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.Definition) error {
	steps, err := marshalColumn(def.Steps)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_definitions
		SET name = ?, name_localized = ?, description = ?, entity_type = ?,
			steps = ?, is_active = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		def.Name, def.NameLocalized, def.Description, def.EntityType,
		steps, def.IsActive, def.UpdatedAt,
		def.TenantID, def.ID, def.Version,
	)
	if err != nil {
		r.logger.Error("failed to update definition", zap.String("id", def.ID), zap.Error(err))
		return fmt.Errorf("update definition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update definition: %w", err)
	}
	if affected == 0 {
		return workflow.NewConflict("definition %s was modified concurrently", def.ID)
	}
	def.Version++
	return nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM workflow_definitions WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		r.logger.Error("failed to delete definition", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete definition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if affected == 0 {
		return workflow.NewNotFound("definition %s not found", id)
	}
	return nil
}

func (r *DefinitionRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Definition, error) {
	query := `
		SELECT id, tenant_id, name, name_localized, description, entity_type,
			steps, is_active, version, created_at, updated_at
		FROM workflow_definitions
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("list definitions: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*entity.Definition, error) {
	var def entity.Definition
	var steps string
	err := row.Scan(
		&def.ID, &def.TenantID, &def.Name, &def.NameLocalized, &def.Description,
		&def.EntityType, &steps, &def.IsActive, &def.Version, &def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.Steps = make(map[string]*entity.Step)
	if err := unmarshalColumn(steps, &def.Steps); err != nil {
		return nil, err
	}
	return &def, nil
}
