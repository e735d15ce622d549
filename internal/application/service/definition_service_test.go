package service

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

type definitionFixture struct {
	svc      DefinitionService
	repo     *fakeDefinitionRepo
	instRepo *fakeInstanceRepo
}

func newDefinitionFixture(t *testing.T) *definitionFixture {
	t.Helper()
	repo := newFakeDefinitionRepo()
	instRepo := newFakeInstanceRepo()
	svc := NewDefinitionService(repo, instRepo, clock.NewMock(), time.Minute, zap.NewNop())
	return &definitionFixture{svc: svc, repo: repo, instRepo: instRepo}
}

func intakeSteps() []*entity.Step {
	return []*entity.Step{
		{ID: "intake", Name: "Intake"},
		{ID: "review", Name: "Conflict review", DependsOn: []string{"intake"}},
		{ID: "close", Name: "Close", IsFinal: true, DependsOn: []string{"review"}},
	}
}

func TestDefinitionService_Create(t *testing.T) {
	f := newDefinitionFixture(t)

	def, err := f.svc.Create(context.Background(), CreateDefinitionInput{
		TenantID:   "firm-1",
		Name:       "Matter intake",
		EntityType: "case",
		Steps:      intakeSteps(),
		IsActive:   true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, int64(1), def.Version)
	require.Len(t, def.Steps, 3)

	// Omitted order indices come from list position.
	assert.Equal(t, 0, def.Steps["intake"].Order)
	assert.Equal(t, 1, def.Steps["review"].Order)
	assert.Equal(t, 2, def.Steps["close"].Order)
	// Omitted trigger defaults to manual.
	assert.Equal(t, entity.TriggerManual, def.Steps["review"].Trigger)
}

func TestDefinitionService_CreateRejections(t *testing.T) {
	tests := []struct {
		name     string
		input    CreateDefinitionInput
		wantKind workflow.Kind
	}{
		{
			name: "no steps",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Empty", EntityType: "case",
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "blank name",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "   ", EntityType: "case",
				Steps: intakeSteps(),
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "missing entity type",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake",
				Steps: intakeSteps(),
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "duplicate step ids",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake", EntityType: "case",
				Steps: []*entity.Step{
					{ID: "intake", Name: "Intake", Order: 0},
					{ID: "intake", Name: "Intake again", Order: 1},
				},
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "duplicate order indices",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake", EntityType: "case",
				Steps: []*entity.Step{
					{ID: "a", Name: "A", Order: 1},
					{ID: "b", Name: "B", Order: 1},
				},
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "two initial steps",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake", EntityType: "case",
				Steps: []*entity.Step{
					{ID: "a", Name: "A", Order: 0, IsInitial: true},
					{ID: "b", Name: "B", Order: 1, IsInitial: true},
				},
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "orphaned dependency",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake", EntityType: "case",
				Steps: []*entity.Step{
					{ID: "a", Name: "A", Order: 0},
					{ID: "b", Name: "B", Order: 1, DependsOn: []string{"deleted"}},
				},
			},
			wantKind: workflow.KindValidation,
		},
		{
			name: "dependency cycle",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake", EntityType: "case",
				Steps: []*entity.Step{
					{ID: "a", Name: "A", Order: 0, DependsOn: []string{"b"}},
					{ID: "b", Name: "B", Order: 1, DependsOn: []string{"a"}},
				},
			},
			wantKind: workflow.KindCycle,
		},
		{
			name: "bad step id",
			input: CreateDefinitionInput{
				TenantID: "firm-1", Name: "Matter intake", EntityType: "case",
				Steps: []*entity.Step{
					{ID: "has spaces", Name: "A", Order: 0},
				},
			},
			wantKind: workflow.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDefinitionFixture(t)
			_, err := f.svc.Create(context.Background(), tt.input)
			assert.Equal(t, tt.wantKind, workflow.KindOf(err))
		})
	}
}

func TestDefinitionService_UpdateStructuralEditValidated(t *testing.T) {
	f := newDefinitionFixture(t)
	def, err := f.svc.Create(context.Background(), CreateDefinitionInput{
		TenantID:   "firm-1",
		Name:       "Matter intake",
		EntityType: "case",
		Steps:      intakeSteps(),
		// Inactive: structural edits are still gated by the resolver.
		IsActive: false,
	})
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), "firm-1", def.ID, DefinitionPatch{
		Steps: []*entity.Step{
			{ID: "a", Name: "A", Order: 0, DependsOn: []string{"b"}},
			{ID: "b", Name: "B", Order: 1, DependsOn: []string{"a"}},
		},
	})
	assert.True(t, workflow.IsCycle(err))

	// The rejected edit left the stored steps intact.
	stored, err := f.svc.Get(context.Background(), "firm-1", def.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 3)
}

func TestDefinitionService_UpdateMetadata(t *testing.T) {
	f := newDefinitionFixture(t)
	def, err := f.svc.Create(context.Background(), CreateDefinitionInput{
		TenantID:   "firm-1",
		Name:       "Matter intake",
		EntityType: "case",
		Steps:      intakeSteps(),
	})
	require.NoError(t, err)

	name := "Matter intake v2"
	active := true
	updated, err := f.svc.Update(context.Background(), "firm-1", def.ID, DefinitionPatch{
		Name:     &name,
		IsActive: &active,
	})
	require.NoError(t, err)
	assert.Equal(t, "Matter intake v2", updated.Name)
	assert.True(t, updated.IsActive)
	assert.Equal(t, int64(2), updated.Version)
	// Untouched fields survive the patch.
	assert.Len(t, updated.Steps, 3)
}

func TestDefinitionService_DeleteGuardedByInstances(t *testing.T) {
	f := newDefinitionFixture(t)
	def, err := f.svc.Create(context.Background(), CreateDefinitionInput{
		TenantID:   "firm-1",
		Name:       "Matter intake",
		EntityType: "case",
		Steps:      intakeSteps(),
		IsActive:   true,
	})
	require.NoError(t, err)

	// A finished instance still pins the definition as audit record.
	require.NoError(t, f.instRepo.Create(context.Background(), &entity.Instance{
		ID:           "inst-1",
		TenantID:     "firm-1",
		DefinitionID: def.ID,
		Status:       workflow.StatusCompleted,
	}))

	err = f.svc.Delete(context.Background(), "firm-1", def.ID)
	assert.True(t, workflow.IsConflict(err))

	delete(f.instRepo.instances, "firm-1/inst-1")
	require.NoError(t, f.svc.Delete(context.Background(), "firm-1", def.ID))

	_, err = f.repo.GetByID(context.Background(), "firm-1", def.ID)
	assert.True(t, workflow.IsNotFound(err))
}

func TestDefinitionService_DeleteUnknown(t *testing.T) {
	f := newDefinitionFixture(t)
	err := f.svc.Delete(context.Background(), "firm-1", "def-missing")
	assert.True(t, workflow.IsNotFound(err))
}
