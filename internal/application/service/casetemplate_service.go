package service

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
	"github.com/qanoonhq/lexflow/pkg/utils"
)

// CreateCaseTemplateInput carries the fields accepted when publishing a new
// case workflow template.
type CreateCaseTemplateInput struct {
	TenantID      string
	Name          string
	NameLocalized string
	Description   string
	Category      string
	Mode          entity.TransitionMode
	Stages        []*entity.Stage
	Transitions   []entity.Transition
	IsActive      bool
}

// CaseTemplatePatch names the mutable fields of a case template. A non-nil
// Stages or Transitions replaces the whole list and is a structural edit.
type CaseTemplatePatch struct {
	Name          *string
	NameLocalized *string
	Description   *string
	Category      *string
	IsActive      *bool
	Stages        []*entity.Stage
	Transitions   []entity.Transition
}

// CaseTemplateService is the definition store for stage-based case workflow
// templates.
type CaseTemplateService interface {
	Create(ctx context.Context, input CreateCaseTemplateInput) (*entity.CaseTemplate, error)
	Get(ctx context.Context, tenantID, id string) (*entity.CaseTemplate, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.CaseTemplate, error)
	Update(ctx context.Context, tenantID, id string, patch CaseTemplatePatch) (*entity.CaseTemplate, error)
	Delete(ctx context.Context, tenantID, id string) error
}

type caseTemplateService struct {
	repo         port.CaseTemplateRepository
	progressRepo port.ProgressRepository
	clock        clock.Clock
	logger       *zap.Logger
}

// NewCaseTemplateService creates a case template service.
func NewCaseTemplateService(
	repo port.CaseTemplateRepository,
	progressRepo port.ProgressRepository,
	clk clock.Clock,
	logger *zap.Logger,
) CaseTemplateService {
	return &caseTemplateService{
		repo:         repo,
		progressRepo: progressRepo,
		clock:        clk,
		logger:       logger,
	}
}

func (s *caseTemplateService) Create(ctx context.Context, input CreateCaseTemplateInput) (*entity.CaseTemplate, error) {
	if input.TenantID == "" {
		return nil, workflow.NewValidation("tenant id is required")
	}
	if err := utils.ValidateName(input.Name); err != nil {
		return nil, workflow.NewValidation("template name: %v", err)
	}

	mode := input.Mode
	if mode == "" {
		mode = entity.ModeLinear
	}
	if !mode.IsValid() {
		return nil, workflow.NewValidation("unknown transition mode %q", mode)
	}
	if mode == entity.ModeExplicit && len(input.Transitions) == 0 {
		return nil, workflow.NewValidation("explicit mode requires declared transitions")
	}

	stages, err := buildStageArena(input.Stages)
	if err != nil {
		return nil, err
	}
	if err := validateTransitions(input.Transitions, stages); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	tpl := &entity.CaseTemplate{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		Name:          input.Name,
		NameLocalized: input.NameLocalized,
		Description:   input.Description,
		Category:      input.Category,
		Mode:          mode,
		Stages:        stages,
		Transitions:   append([]entity.Transition(nil), input.Transitions...),
		IsActive:      input.IsActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, err
	}

	s.logger.Info("case template created",
		zap.String("tenant_id", tpl.TenantID),
		zap.String("template_id", tpl.ID),
		zap.String("mode", string(tpl.Mode)),
		zap.Int("stages", len(tpl.Stages)))
	return tpl, nil
}

func (s *caseTemplateService) Get(ctx context.Context, tenantID, id string) (*entity.CaseTemplate, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *caseTemplateService) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.CaseTemplate, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

// Update applies a patch. Structural edits (stage or transition changes) go
// through the dependency resolver before being accepted, regardless of the
// active flag.
func (s *caseTemplateService) Update(ctx context.Context, tenantID, id string, patch CaseTemplatePatch) (*entity.CaseTemplate, error) {
	tpl, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if err := utils.ValidateName(*patch.Name); err != nil {
			return nil, workflow.NewValidation("template name: %v", err)
		}
		tpl.Name = *patch.Name
	}
	if patch.NameLocalized != nil {
		tpl.NameLocalized = *patch.NameLocalized
	}
	if patch.Description != nil {
		tpl.Description = *patch.Description
	}
	if patch.Category != nil {
		tpl.Category = *patch.Category
	}
	if patch.IsActive != nil {
		tpl.IsActive = *patch.IsActive
	}
	if patch.Stages != nil {
		stages, err := buildStageArena(patch.Stages)
		if err != nil {
			return nil, err
		}
		tpl.Stages = stages
	}
	if patch.Transitions != nil {
		tpl.Transitions = append([]entity.Transition(nil), patch.Transitions...)
	}
	if patch.Stages != nil || patch.Transitions != nil {
		if err := validateTransitions(tpl.Transitions, tpl.Stages); err != nil {
			return nil, err
		}
	}

	tpl.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, tpl); err != nil {
		return nil, err
	}

	s.logger.Info("case template updated",
		zap.String("tenant_id", tenantID),
		zap.String("template_id", id),
		zap.Bool("structural", patch.Stages != nil || patch.Transitions != nil))
	return tpl, nil
}

// Delete removes a case template unless any progress record references it.
func (s *caseTemplateService) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := s.repo.GetByID(ctx, tenantID, id); err != nil {
		return err
	}

	count, err := s.progressRepo.CountByTemplate(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return workflow.NewConflict("template %s is referenced by %d progress record(s)", id, count)
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("case template deleted",
		zap.String("tenant_id", tenantID),
		zap.String("template_id", id))
	return nil
}
