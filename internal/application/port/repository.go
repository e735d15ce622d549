package port

import (
	"context"
	"errors"

	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// ErrNoChange may be returned by an AtomicUpdate mutation to signal that the
// record should not be written. The update then succeeds without bumping the
// version or touching storage, which is how idempotent re-entry avoids
// spurious history.
var ErrNoChange = errors.New("no change")

// DefinitionRepository defines persistence operations for generic workflow
// definitions. All lookups are tenant-scoped.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.Definition) error
	// GetByID returns a NOT_FOUND engine error when the definition is absent.
	GetByID(ctx context.Context, tenantID, id string) (*entity.Definition, error)
	// Update is version-guarded: writing a stale snapshot yields CONFLICT.
	Update(ctx context.Context, def *entity.Definition) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Definition, error)
}

// CaseTemplateRepository defines persistence operations for stage-based case
// workflow templates.
type CaseTemplateRepository interface {
	Create(ctx context.Context, tpl *entity.CaseTemplate) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.CaseTemplate, error)
	Update(ctx context.Context, tpl *entity.CaseTemplate) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.CaseTemplate, error)
}

// InstanceRepository defines persistence operations for generic workflow
// instances.
type InstanceRepository interface {
	Create(ctx context.Context, inst *entity.Instance) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Instance, error)
	ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*entity.Instance, error)
	// CountByDefinition counts instances (including finished ones) that
	// reference a definition as their origin; used to refuse definition
	// deletion while the audit record exists.
	CountByDefinition(ctx context.Context, tenantID, definitionID string) (int64, error)

	// AtomicUpdate applies mutate to the current record and persists the
	// result as a single conditional write. When expected is non-empty and
	// the record's status is not among them, the update fails with
	// INVALID_STATE before mutate runs. A concurrent write landing between
	// read and write fails with CONFLICT; the caller decides whether to
	// retry. Partial application is never observable.
	AtomicUpdate(ctx context.Context, tenantID, id string, expected []workflow.Status, mutate func(*entity.Instance) error) (*entity.Instance, error)
}

// ProgressRepository defines persistence operations for case stage progress
// records. A case has at most one progress record; Create fails with
// CONFLICT for a duplicate case id.
type ProgressRepository interface {
	Create(ctx context.Context, progress *entity.StageProgress) error
	GetByCaseID(ctx context.Context, tenantID, caseID string) (*entity.StageProgress, error)
	CountByTemplate(ctx context.Context, tenantID, templateID string) (int64, error)

	// AtomicUpdate mirrors InstanceRepository.AtomicUpdate for progress
	// records, keyed by case id.
	AtomicUpdate(ctx context.Context, tenantID, caseID string, expected []entity.CaseStatus, mutate func(*entity.StageProgress) error) (*entity.StageProgress, error)
}
