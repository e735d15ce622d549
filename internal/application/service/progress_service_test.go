package service

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// litigationTemplate models a four-stage civil matter: discovery is gated on
// both the pleadings stage and its serve-defendant requirement.
func litigationTemplate() *entity.CaseTemplate {
	return &entity.CaseTemplate{
		ID:       "tpl-civil",
		TenantID: "firm-1",
		Name:     "Civil litigation",
		Category: "civil",
		Mode:     entity.ModeLinear,
		IsActive: true,
		Stages: map[string]*entity.Stage{
			"intake": {ID: "intake", Name: "Intake", Order: 0, IsInitial: true},
			"pleadings": {
				ID: "pleadings", Name: "Pleadings", Order: 1,
				DependsOn: []string{"intake"},
				Requirements: []entity.Requirement{
					{ID: "file-complaint", Name: "File complaint"},
					{ID: "serve-defendant", Name: "Serve defendant"},
				},
			},
			"discovery": {
				ID: "discovery", Name: "Discovery", Order: 2,
				DependsOn: []string{"pleadings", "serve-defendant"},
			},
			"trial": {
				ID: "trial", Name: "Trial", Order: 3, IsFinal: true,
				DependsOn: []string{"discovery"},
			},
		},
		Version: 1,
	}
}

type progressFixture struct {
	svc  ProgressService
	tpls *fakeCaseTemplateRepo
	repo *fakeProgressRepo
}

func newProgressFixture(t *testing.T, tpls ...*entity.CaseTemplate) *progressFixture {
	t.Helper()
	tplRepo := newFakeCaseTemplateRepo()
	for _, tpl := range tpls {
		require.NoError(t, tplRepo.Create(context.Background(), tpl))
	}
	repo := newFakeProgressRepo()
	svc := NewProgressService(tplRepo, repo, clock.NewMock(), zap.NewNop())
	return &progressFixture{svc: svc, tpls: tplRepo, repo: repo}
}

func (f *progressFixture) initialize(t *testing.T, caseID string) *entity.StageProgress {
	t.Helper()
	p, err := f.svc.InitializeForCase(context.Background(), InitializeCaseInput{
		TenantID:   "firm-1",
		CaseID:     caseID,
		TemplateID: "tpl-civil",
		Actor:      "paralegal-1",
	})
	require.NoError(t, err)
	return p
}

func TestProgressService_InitializeForCase(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	p := f.initialize(t, "case-42")

	assert.Equal(t, entity.CaseActive, p.Status)
	assert.Equal(t, "intake", p.CurrentStageID)
	assert.Equal(t, entity.ModeLinear, p.Mode)
	assert.Len(t, p.Stages, 4)
	require.Len(t, p.History, 1)
	assert.Equal(t, entity.ActionStarted, p.History[0].Action)
}

func TestProgressService_InitializeRejectsSecondRecord(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	f.initialize(t, "case-42")

	_, err := f.svc.InitializeForCase(context.Background(), InitializeCaseInput{
		TenantID:   "firm-1",
		CaseID:     "case-42",
		TemplateID: "tpl-civil",
	})
	assert.True(t, workflow.IsConflict(err))
}

func TestProgressService_InitializeInactiveTemplate(t *testing.T) {
	tpl := litigationTemplate()
	tpl.IsActive = false
	f := newProgressFixture(t, tpl)

	_, err := f.svc.InitializeForCase(context.Background(), InitializeCaseInput{
		TenantID:   "firm-1",
		CaseID:     "case-42",
		TemplateID: "tpl-civil",
	})
	assert.True(t, workflow.IsNotFound(err))
}

func TestProgressService_InitializeSnapshotsStages(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	p := f.initialize(t, "case-42")

	tpl, err := f.tpls.GetByID(context.Background(), "firm-1", "tpl-civil")
	require.NoError(t, err)
	tpl.Stages["discovery"].DependsOn = []string{"nonexistent"}
	delete(tpl.Stages, "trial")

	assert.Contains(t, p.Stages, "trial")
	assert.Equal(t, []string{"pleadings", "serve-defendant"}, p.Stages["discovery"].DependsOn)
}

func TestProgressService_MoveToStageGating(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	f.initialize(t, "case-42")
	ctx := context.Background()

	// Discovery is unreachable: pleadings not visited, requirement open.
	_, err := f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-42", TargetStageID: "discovery",
	})
	require.True(t, workflow.IsInvalidTransition(err))
	var engineErr *workflow.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, []string{"pleadings", "serve-defendant"}, engineErr.StepIDs)

	p, err := f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-42", TargetStageID: "pleadings",
		Actor: "attorney-3", Notes: "complaint drafted",
	})
	require.NoError(t, err)
	assert.Equal(t, "pleadings", p.CurrentStageID)

	// Visiting pleadings is not enough while the requirement is open.
	_, err = f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-42", TargetStageID: "discovery",
	})
	require.True(t, workflow.IsInvalidTransition(err))
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, []string{"serve-defendant"}, engineErr.StepIDs)

	_, err = f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
		TenantID: "firm-1", CaseID: "case-42",
		StageID: "pleadings", RequirementID: "serve-defendant",
	})
	require.NoError(t, err)

	p, err = f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-42", TargetStageID: "discovery",
	})
	require.NoError(t, err)
	assert.Equal(t, "discovery", p.CurrentStageID)
	assert.Equal(t, entity.CaseActive, p.Status)
}

func TestProgressService_MoveToFinalStageCompletes(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	f.initialize(t, "case-42")
	ctx := context.Background()

	steps := []string{"pleadings", "discovery", "trial"}
	_, err := f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
		TenantID: "firm-1", CaseID: "case-42",
		StageID: "pleadings", RequirementID: "serve-defendant",
	})
	require.NoError(t, err)

	var p *entity.StageProgress
	for _, target := range steps {
		p, err = f.svc.MoveToStage(ctx, MoveToStageInput{
			TenantID: "firm-1", CaseID: "case-42", TargetStageID: target,
		})
		require.NoError(t, err, "move to %s", target)
	}

	assert.Equal(t, entity.CaseCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)

	// Completed progress accepts no further moves or requirement edits.
	_, err = f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-42", TargetStageID: "intake",
	})
	assert.True(t, workflow.IsInvalidState(err))
	_, err = f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
		TenantID: "firm-1", CaseID: "case-42",
		StageID: "pleadings", RequirementID: "file-complaint",
	})
	assert.True(t, workflow.IsInvalidState(err))
}

func TestProgressService_MoveRejections(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	f.initialize(t, "case-42")
	ctx := context.Background()

	t.Run("unknown stage", func(t *testing.T) {
		_, err := f.svc.MoveToStage(ctx, MoveToStageInput{
			TenantID: "firm-1", CaseID: "case-42", TargetStageID: "appeal",
		})
		assert.True(t, workflow.IsValidation(err))
	})

	t.Run("already at stage", func(t *testing.T) {
		_, err := f.svc.MoveToStage(ctx, MoveToStageInput{
			TenantID: "firm-1", CaseID: "case-42", TargetStageID: "intake",
		})
		assert.True(t, workflow.IsInvalidTransition(err))
	})

	t.Run("unknown case", func(t *testing.T) {
		_, err := f.svc.MoveToStage(ctx, MoveToStageInput{
			TenantID: "firm-1", CaseID: "case-none", TargetStageID: "pleadings",
		})
		assert.True(t, workflow.IsNotFound(err))
	})
}

func TestProgressService_ExplicitModeRequiresDeclaredEdge(t *testing.T) {
	tpl := &entity.CaseTemplate{
		ID:       "tpl-civil",
		TenantID: "firm-1",
		Name:     "Appeals track",
		Mode:     entity.ModeExplicit,
		IsActive: true,
		Stages: map[string]*entity.Stage{
			"notice":   {ID: "notice", Name: "Notice of appeal", Order: 0, IsInitial: true},
			"briefing": {ID: "briefing", Name: "Briefing", Order: 1},
			"decision": {ID: "decision", Name: "Decision", Order: 2, IsFinal: true},
		},
		Transitions: []entity.Transition{
			{From: "notice", To: "briefing"},
			{From: "briefing", To: "decision"},
		},
		Version: 1,
	}
	f := newProgressFixture(t, tpl)
	f.initialize(t, "case-9")
	ctx := context.Background()

	// No declared edge notice -> decision, even though decision has no
	// unmet dependencies.
	_, err := f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-9", TargetStageID: "decision",
	})
	assert.True(t, workflow.IsInvalidTransition(err))

	p, err := f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-9", TargetStageID: "briefing",
	})
	require.NoError(t, err)
	assert.Equal(t, "briefing", p.CurrentStageID)

	p, err = f.svc.MoveToStage(ctx, MoveToStageInput{
		TenantID: "firm-1", CaseID: "case-9", TargetStageID: "decision",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.CaseCompleted, p.Status)
}

func TestProgressService_CompleteRequirementIdempotent(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	f.initialize(t, "case-42")
	ctx := context.Background()

	first, err := f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
		TenantID: "firm-1", CaseID: "case-42",
		StageID: "pleadings", RequirementID: "file-complaint",
		Metadata: map[string]string{"docket": "25-cv-1042"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-complaint"}, first.CompletedRequirements)
	require.Len(t, first.History, 2)
	assert.Equal(t, int64(2), first.Version)

	entry := first.History[1]
	assert.Equal(t, entity.ActionRequirementCompleted, entry.Action)
	require.NotNil(t, entry.RequirementCompleted)
	assert.Equal(t, "25-cv-1042", entry.RequirementCompleted.Metadata["docket"])

	// Repeat completion succeeds, appends nothing, writes nothing.
	second, err := f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
		TenantID: "firm-1", CaseID: "case-42",
		StageID: "pleadings", RequirementID: "file-complaint",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-complaint"}, second.CompletedRequirements)
	assert.Len(t, second.History, 2)
	assert.Equal(t, int64(2), second.Version)
}

func TestProgressService_CompleteRequirementRejections(t *testing.T) {
	f := newProgressFixture(t, litigationTemplate())
	f.initialize(t, "case-42")
	ctx := context.Background()

	t.Run("unknown stage", func(t *testing.T) {
		_, err := f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
			TenantID: "firm-1", CaseID: "case-42",
			StageID: "appeal", RequirementID: "file-complaint",
		})
		assert.True(t, workflow.IsValidation(err))
	})

	t.Run("requirement not on stage", func(t *testing.T) {
		_, err := f.svc.CompleteRequirement(ctx, CompleteRequirementInput{
			TenantID: "firm-1", CaseID: "case-42",
			StageID: "intake", RequirementID: "file-complaint",
		})
		assert.True(t, workflow.IsValidation(err))
	})
}
