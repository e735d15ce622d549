package service

import (
	"context"
	"errors"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// In-memory fakes mirroring the sqlite repositories' contract: NOT_FOUND for
// absent records, INVALID_STATE for failed status preconditions, version
// bumps on every write.

type fakeDefinitionRepo struct {
	defs map[string]*entity.Definition
}

func newFakeDefinitionRepo() *fakeDefinitionRepo {
	return &fakeDefinitionRepo{defs: make(map[string]*entity.Definition)}
}

func (r *fakeDefinitionRepo) Create(_ context.Context, def *entity.Definition) error {
	r.defs[def.TenantID+"/"+def.ID] = def
	return nil
}

func (r *fakeDefinitionRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Definition, error) {
	def, ok := r.defs[tenantID+"/"+id]
	if !ok {
		return nil, workflow.NewNotFound("definition %s not found", id)
	}
	return def, nil
}

func (r *fakeDefinitionRepo) Update(_ context.Context, def *entity.Definition) error {
	key := def.TenantID + "/" + def.ID
	if _, ok := r.defs[key]; !ok {
		return workflow.NewNotFound("definition %s not found", def.ID)
	}
	def.Version++
	r.defs[key] = def
	return nil
}

func (r *fakeDefinitionRepo) Delete(_ context.Context, tenantID, id string) error {
	delete(r.defs, tenantID+"/"+id)
	return nil
}

func (r *fakeDefinitionRepo) List(_ context.Context, tenantID string, _, _ int) ([]*entity.Definition, error) {
	var out []*entity.Definition
	for _, def := range r.defs {
		if def.TenantID == tenantID {
			out = append(out, def)
		}
	}
	return out, nil
}

type fakeCaseTemplateRepo struct {
	tpls map[string]*entity.CaseTemplate
}

func newFakeCaseTemplateRepo() *fakeCaseTemplateRepo {
	return &fakeCaseTemplateRepo{tpls: make(map[string]*entity.CaseTemplate)}
}

func (r *fakeCaseTemplateRepo) Create(_ context.Context, tpl *entity.CaseTemplate) error {
	r.tpls[tpl.TenantID+"/"+tpl.ID] = tpl
	return nil
}

func (r *fakeCaseTemplateRepo) GetByID(_ context.Context, tenantID, id string) (*entity.CaseTemplate, error) {
	tpl, ok := r.tpls[tenantID+"/"+id]
	if !ok {
		return nil, workflow.NewNotFound("template %s not found", id)
	}
	return tpl, nil
}

func (r *fakeCaseTemplateRepo) Update(_ context.Context, tpl *entity.CaseTemplate) error {
	key := tpl.TenantID + "/" + tpl.ID
	if _, ok := r.tpls[key]; !ok {
		return workflow.NewNotFound("template %s not found", tpl.ID)
	}
	tpl.Version++
	r.tpls[key] = tpl
	return nil
}

func (r *fakeCaseTemplateRepo) Delete(_ context.Context, tenantID, id string) error {
	delete(r.tpls, tenantID+"/"+id)
	return nil
}

func (r *fakeCaseTemplateRepo) List(_ context.Context, tenantID string, _, _ int) ([]*entity.CaseTemplate, error) {
	var out []*entity.CaseTemplate
	for _, tpl := range r.tpls {
		if tpl.TenantID == tenantID {
			out = append(out, tpl)
		}
	}
	return out, nil
}

type fakeInstanceRepo struct {
	instances map[string]*entity.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]*entity.Instance)}
}

func (r *fakeInstanceRepo) Create(_ context.Context, inst *entity.Instance) error {
	r.instances[inst.TenantID+"/"+inst.ID] = inst
	return nil
}

func (r *fakeInstanceRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Instance, error) {
	inst, ok := r.instances[tenantID+"/"+id]
	if !ok {
		return nil, workflow.NewNotFound("instance %s not found", id)
	}
	return inst, nil
}

func (r *fakeInstanceRepo) ListByEntity(_ context.Context, tenantID, entityType, entityID string) ([]*entity.Instance, error) {
	var out []*entity.Instance
	for _, inst := range r.instances {
		if inst.TenantID == tenantID && inst.EntityType == entityType && inst.EntityID == entityID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) CountByDefinition(_ context.Context, tenantID, definitionID string) (int64, error) {
	var count int64
	for _, inst := range r.instances {
		if inst.TenantID == tenantID && inst.DefinitionID == definitionID {
			count++
		}
	}
	return count, nil
}

func (r *fakeInstanceRepo) AtomicUpdate(
	ctx context.Context,
	tenantID, id string,
	expected []workflow.Status,
	mutate func(*entity.Instance) error,
) (*entity.Instance, error) {
	inst, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(expected) > 0 {
		ok := false
		for _, s := range expected {
			if s == inst.Status {
				ok = true
				break
			}
		}
		if !ok {
			return nil, workflow.NewInvalidState("instance %s is %s", id, inst.Status)
		}
	}
	if err := mutate(inst); err != nil {
		if errors.Is(err, port.ErrNoChange) {
			return inst, nil
		}
		return nil, err
	}
	inst.Version++
	return inst, nil
}

type fakeProgressRepo struct {
	records map[string]*entity.StageProgress
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{records: make(map[string]*entity.StageProgress)}
}

func (r *fakeProgressRepo) Create(_ context.Context, progress *entity.StageProgress) error {
	key := progress.TenantID + "/" + progress.CaseID
	if _, exists := r.records[key]; exists {
		return workflow.NewConflict("case %s already has a progress record", progress.CaseID)
	}
	r.records[key] = progress
	return nil
}

func (r *fakeProgressRepo) GetByCaseID(_ context.Context, tenantID, caseID string) (*entity.StageProgress, error) {
	progress, ok := r.records[tenantID+"/"+caseID]
	if !ok {
		return nil, workflow.NewNotFound("no progress record for case %s", caseID)
	}
	return progress, nil
}

func (r *fakeProgressRepo) CountByTemplate(_ context.Context, tenantID, templateID string) (int64, error) {
	var count int64
	for _, p := range r.records {
		if p.TenantID == tenantID && p.TemplateID == templateID {
			count++
		}
	}
	return count, nil
}

func (r *fakeProgressRepo) AtomicUpdate(
	ctx context.Context,
	tenantID, caseID string,
	expected []entity.CaseStatus,
	mutate func(*entity.StageProgress) error,
) (*entity.StageProgress, error) {
	progress, err := r.GetByCaseID(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if len(expected) > 0 {
		ok := false
		for _, s := range expected {
			if s == progress.Status {
				ok = true
				break
			}
		}
		if !ok {
			return nil, workflow.NewInvalidState("case %s progress is %s", caseID, progress.Status)
		}
	}
	if err := mutate(progress); err != nil {
		if errors.Is(err, port.ErrNoChange) {
			return progress, nil
		}
		return nil, err
	}
	progress.Version++
	return progress, nil
}

// fakeResolver accepts every entity unless resolveFn is set.
type fakeResolver struct {
	resolveFn func(ctx context.Context, tenantID, entityType, entityID string) error
}

func (r *fakeResolver) Resolve(ctx context.Context, tenantID, entityType, entityID string) error {
	if r.resolveFn == nil {
		return nil
	}
	return r.resolveFn(ctx, tenantID, entityType, entityID)
}
