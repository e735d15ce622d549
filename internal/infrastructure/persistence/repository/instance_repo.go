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

// InstanceRepository implements port.InstanceRepository over sqlite. The
// step snapshot, variables, and history live in JSON columns; the version
// column guards every write.
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

func (r *InstanceRepository) Create(ctx context.Context, inst *entity.Instance) error {
	steps, variables, history, err := marshalInstanceColumns(inst)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instances (
			id, tenant_id, definition_id, entity_type, entity_id, status,
			current_step_id, steps, variables, history, started_at, started_by,
			completed_at, cancelled_at, cancel_reason, fail_reason,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		inst.ID, inst.TenantID, inst.DefinitionID, inst.EntityType, inst.EntityID,
		inst.Status.String(), inst.CurrentStepID, steps, variables, history,
		inst.StartedAt, inst.StartedBy, inst.CompletedAt, inst.CancelledAt,
		inst.CancelReason, inst.FailReason, inst.Version, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create instance", zap.Error(err))
		return constraintConflict(err, "instance %s already exists", inst.ID)
	}
	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.Instance, error) {
	inst, err := scanInstance(r.db.QueryRowContext(ctx,
		instanceSelect+" WHERE tenant_id = ? AND id = ?", tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NewNotFound("instance %s not found", id)
	}
	if err != nil {
		r.logger.Error("failed to get instance", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

func (r *InstanceRepository) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*entity.Instance, error) {
	rows, err := r.db.QueryContext(ctx,
		instanceSelect+" WHERE tenant_id = ? AND entity_type = ? AND entity_id = ? ORDER BY started_at",
		tenantID, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (r *InstanceRepository) CountByDefinition(ctx context.Context, tenantID, definitionID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workflow_instances WHERE tenant_id = ? AND definition_id = ?",
		tenantID, definitionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count instances: %w", err)
	}
	return count, nil
}

// AtomicUpdate reads the record, applies mutate, and writes the result as a
// single conditional update keyed on the version read. A lost race surfaces
// as CONFLICT; a status outside expected surfaces as INVALID_STATE before
// mutate runs.
func (r *InstanceRepository) AtomicUpdate(
	ctx context.Context,
	tenantID, id string,
	expected []workflow.Status,
	mutate func(*entity.Instance) error,
) (*entity.Instance, error) {
	inst, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if len(expected) > 0 && !statusIn(inst.Status, expected) {
		return nil, workflow.NewInvalidState("instance %s is %s", id, inst.Status)
	}

	readVersion := inst.Version
	if err := mutate(inst); err != nil {
		if errors.Is(err, port.ErrNoChange) {
			return inst, nil
		}
		return nil, err
	}

	steps, variables, history, err := marshalInstanceColumns(inst)
	if err != nil {
		return nil, err
	}

	inst.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE workflow_instances
		SET status = ?, current_step_id = ?, steps = ?, variables = ?, history = ?,
			completed_at = ?, cancelled_at = ?, cancel_reason = ?, fail_reason = ?,
			version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		inst.Status.String(), inst.CurrentStepID, steps, variables, history,
		inst.CompletedAt, inst.CancelledAt, inst.CancelReason, inst.FailReason,
		inst.UpdatedAt,
		tenantID, id, readVersion,
	)
	if err != nil {
		r.logger.Error("failed to update instance", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("update instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update instance: %w", err)
	}
	if affected == 0 {
		return nil, workflow.NewConflict("instance %s was modified concurrently", id)
	}
	inst.Version = readVersion + 1
	return inst, nil
}

const instanceSelect = `
	SELECT id, tenant_id, definition_id, entity_type, entity_id, status,
		current_step_id, steps, variables, history, started_at, started_by,
		completed_at, cancelled_at, cancel_reason, fail_reason,
		version, created_at, updated_at
	FROM workflow_instances`

func scanInstance(row rowScanner) (*entity.Instance, error) {
	var inst entity.Instance
	var status, steps, variables, history string
	var completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.DefinitionID, &inst.EntityType, &inst.EntityID,
		&status, &inst.CurrentStepID, &steps, &variables, &history,
		&inst.StartedAt, &inst.StartedBy, &completedAt, &cancelledAt,
		&inst.CancelReason, &inst.FailReason, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.Status = workflow.Status(status)
	inst.Steps = make(map[string]*entity.Step)
	if err := unmarshalColumn(steps, &inst.Steps); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(variables, &inst.Variables); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(history, &inst.History); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		inst.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		inst.CancelledAt = &cancelledAt.Time
	}
	return &inst, nil
}

func marshalInstanceColumns(inst *entity.Instance) (steps, variables, history string, err error) {
	if steps, err = marshalColumn(inst.Steps); err != nil {
		return
	}
	if inst.Variables == nil {
		variables = "{}"
	} else if variables, err = marshalColumn(inst.Variables); err != nil {
		return
	}
	history, err = marshalColumn(inst.History)
	return
}

func statusIn(status workflow.Status, set []workflow.Status) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
