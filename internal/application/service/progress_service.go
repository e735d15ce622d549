package service

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// InitializeCaseInput carries the parameters for binding a case to a case
// workflow template.
type InitializeCaseInput struct {
	TenantID   string
	CaseID     string
	TemplateID string
	Actor      string
}

// MoveToStageInput carries the parameters of a stage move.
type MoveToStageInput struct {
	TenantID      string
	CaseID        string
	TargetStageID string
	Actor         string
	Notes         string
}

// CompleteRequirementInput carries the parameters of a requirement
// completion.
type CompleteRequirementInput struct {
	TenantID      string
	CaseID        string
	StageID       string
	RequirementID string
	Actor         string
	Metadata      map[string]string
}

// ProgressService is the case-specific stage progress engine.
type ProgressService interface {
	InitializeForCase(ctx context.Context, input InitializeCaseInput) (*entity.StageProgress, error)
	MoveToStage(ctx context.Context, input MoveToStageInput) (*entity.StageProgress, error)
	// CompleteRequirement is idempotent: completing an already-completed
	// requirement succeeds without appending history.
	CompleteRequirement(ctx context.Context, input CompleteRequirementInput) (*entity.StageProgress, error)
	Get(ctx context.Context, tenantID, caseID string) (*entity.StageProgress, error)
}

type progressService struct {
	templateRepo port.CaseTemplateRepository
	progressRepo port.ProgressRepository
	clock        clock.Clock
	logger       *zap.Logger
}

// NewProgressService creates the stage progress engine.
func NewProgressService(
	templateRepo port.CaseTemplateRepository,
	progressRepo port.ProgressRepository,
	clk clock.Clock,
	logger *zap.Logger,
) ProgressService {
	return &progressService{
		templateRepo: templateRepo,
		progressRepo: progressRepo,
		clock:        clk,
		logger:       logger,
	}
}

// InitializeForCase positions a new progress record at the template's
// initial stage, snapshotting the template shape into the record.
func (s *progressService) InitializeForCase(ctx context.Context, input InitializeCaseInput) (*entity.StageProgress, error) {
	if input.TenantID == "" {
		return nil, workflow.NewValidation("tenant id is required")
	}
	if input.CaseID == "" {
		return nil, workflow.NewValidation("case id is required")
	}

	tpl, err := s.templateRepo.GetByID(ctx, input.TenantID, input.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, workflow.NewNotFound("template %s is not active", input.TemplateID)
	}

	initial := tpl.InitialStage()
	if initial == nil {
		return nil, workflow.NewValidation("template %s has no stages", tpl.ID)
	}

	now := s.clock.Now().UTC()
	progress := &entity.StageProgress{
		ID:             uuid.NewString(),
		TenantID:       input.TenantID,
		CaseID:         input.CaseID,
		TemplateID:     tpl.ID,
		Status:         entity.CaseActive,
		CurrentStageID: initial.ID,
		Mode:           tpl.Mode,
		Stages:         tpl.CloneStages(),
		Transitions:    append([]entity.Transition(nil), tpl.Transitions...),
		StartedAt:      now,
		StartedBy:      input.Actor,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	progress.AppendHistory(entity.HistoryEntry{
		Action:    entity.ActionStarted,
		Timestamp: now,
		Actor:     input.Actor,
		Started: &entity.StartedDetails{
			DefinitionID:  tpl.ID,
			InitialStepID: initial.ID,
		},
	})

	if err := s.progressRepo.Create(ctx, progress); err != nil {
		return nil, err
	}

	s.logger.Info("case progress initialized",
		zap.String("tenant_id", progress.TenantID),
		zap.String("case_id", progress.CaseID),
		zap.String("template_id", tpl.ID),
		zap.String("initial_stage", initial.ID))
	return progress, nil
}

// MoveToStage validates readiness and, in explicit mode, the declared
// transition edge, then repositions the case and appends a stage_moved
// entry. Moving into a final stage completes the progress record.
func (s *progressService) MoveToStage(ctx context.Context, input MoveToStageInput) (*entity.StageProgress, error) {
	progress, err := s.progressRepo.AtomicUpdate(ctx, input.TenantID, input.CaseID,
		[]entity.CaseStatus{entity.CaseActive},
		func(p *entity.StageProgress) error {
			target, ok := p.Stages[input.TargetStageID]
			if !ok {
				return workflow.NewValidation("stage %q does not exist in the originating template", input.TargetStageID)
			}
			if target.ID == p.CurrentStageID {
				return workflow.NewInvalidTransition("case is already at stage %q", target.ID)
			}

			if missing := workflow.MissingDependencies(target, p.SatisfiedIDs()); len(missing) > 0 {
				return &workflow.Error{
					Kind:    workflow.KindInvalidTransition,
					Message: "stage dependencies are not satisfied",
					StepIDs: missing,
				}
			}
			if p.Mode == entity.ModeExplicit && !p.AllowsTransition(p.CurrentStageID, target.ID) {
				return workflow.NewInvalidTransition("no declared transition from %q to %q",
					p.CurrentStageID, target.ID)
			}

			now := s.clock.Now().UTC()
			from := p.CurrentStageID
			p.CurrentStageID = target.ID
			p.AppendHistory(entity.HistoryEntry{
				Action:    entity.ActionStageMoved,
				Timestamp: now,
				Actor:     input.Actor,
				StageMoved: &entity.StageMovedDetails{
					FromStageID: from,
					ToStageID:   target.ID,
					Notes:       input.Notes,
				},
			})

			if target.IsFinal {
				p.Status = entity.CaseCompleted
				completedAt := now
				p.CompletedAt = &completedAt
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("case moved to stage",
		zap.String("tenant_id", input.TenantID),
		zap.String("case_id", input.CaseID),
		zap.String("stage_id", progress.CurrentStageID),
		zap.String("status", string(progress.Status)))
	return progress, nil
}

// CompleteRequirement records a satisfied requirement. Repeated completions
// are accepted without a write, so retrying callers observe success and the
// set never holds duplicates.
func (s *progressService) CompleteRequirement(ctx context.Context, input CompleteRequirementInput) (*entity.StageProgress, error) {
	progress, err := s.progressRepo.AtomicUpdate(ctx, input.TenantID, input.CaseID,
		[]entity.CaseStatus{entity.CaseActive},
		func(p *entity.StageProgress) error {
			stage, ok := p.Stages[input.StageID]
			if !ok {
				return workflow.NewValidation("stage %q does not exist in the originating template", input.StageID)
			}
			found := false
			for _, r := range stage.Requirements {
				if r.ID == input.RequirementID {
					found = true
					break
				}
			}
			if !found {
				return workflow.NewValidation("stage %q has no requirement %q", stage.ID, input.RequirementID)
			}

			if !p.AddRequirement(input.RequirementID) {
				return port.ErrNoChange
			}

			p.AppendHistory(entity.HistoryEntry{
				Action:    entity.ActionRequirementCompleted,
				Timestamp: s.clock.Now().UTC(),
				Actor:     input.Actor,
				RequirementCompleted: &entity.RequirementCompletedDetails{
					StageID:       stage.ID,
					RequirementID: input.RequirementID,
					Metadata:      input.Metadata,
				},
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("requirement completed",
		zap.String("tenant_id", input.TenantID),
		zap.String("case_id", input.CaseID),
		zap.String("stage_id", input.StageID),
		zap.String("requirement_id", input.RequirementID))
	return progress, nil
}

func (s *progressService) Get(ctx context.Context, tenantID, caseID string) (*entity.StageProgress, error) {
	return s.progressRepo.GetByCaseID(ctx, tenantID, caseID)
}
