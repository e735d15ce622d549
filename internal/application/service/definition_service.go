package service

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/port"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
	"github.com/qanoonhq/lexflow/pkg/utils"
)

// CreateDefinitionInput carries the fields accepted when publishing a new
// generic workflow definition. Steps are given in display order; omitted
// order indices are assigned from list position.
type CreateDefinitionInput struct {
	TenantID      string
	Name          string
	NameLocalized string
	Description   string
	EntityType    string
	Steps         []*entity.Step
	IsActive      bool
}

// DefinitionPatch names the mutable fields of a definition. Nil fields are
// left unchanged. A non-nil Steps replaces the whole step list and is a
// structural edit.
type DefinitionPatch struct {
	Name          *string
	NameLocalized *string
	Description   *string
	IsActive      *bool
	Steps         []*entity.Step
}

// DefinitionService is the definition store for generic workflow templates.
type DefinitionService interface {
	Create(ctx context.Context, input CreateDefinitionInput) (*entity.Definition, error)
	Get(ctx context.Context, tenantID, id string) (*entity.Definition, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Definition, error)
	Update(ctx context.Context, tenantID, id string, patch DefinitionPatch) (*entity.Definition, error)
	Delete(ctx context.Context, tenantID, id string) error
}

type definitionService struct {
	repo         port.DefinitionRepository
	instanceRepo port.InstanceRepository
	cache        *ttlcache.Cache[string, *entity.Definition]
	clock        clock.Clock
	logger       *zap.Logger
}

// NewDefinitionService creates a definition service with a read-through
// cache of the given TTL.
func NewDefinitionService(
	repo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	clk clock.Clock,
	cacheTTL time.Duration,
	logger *zap.Logger,
) DefinitionService {
	cache := ttlcache.New[string, *entity.Definition](
		ttlcache.WithTTL[string, *entity.Definition](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *entity.Definition](),
	)
	go cache.Start()

	return &definitionService{
		repo:         repo,
		instanceRepo: instanceRepo,
		cache:        cache,
		clock:        clk,
		logger:       logger,
	}
}

func (s *definitionService) Create(ctx context.Context, input CreateDefinitionInput) (*entity.Definition, error) {
	if input.TenantID == "" {
		return nil, workflow.NewValidation("tenant id is required")
	}
	if err := utils.ValidateName(input.Name); err != nil {
		return nil, workflow.NewValidation("definition name: %v", err)
	}
	if input.EntityType == "" {
		return nil, workflow.NewValidation("entity type is required")
	}

	steps, err := buildStepArena(input.Steps)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	def := &entity.Definition{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		Name:          input.Name,
		NameLocalized: input.NameLocalized,
		Description:   input.Description,
		EntityType:    input.EntityType,
		Steps:         steps,
		IsActive:      input.IsActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, def); err != nil {
		return nil, err
	}

	s.logger.Info("definition created",
		zap.String("tenant_id", def.TenantID),
		zap.String("definition_id", def.ID),
		zap.Int("steps", len(def.Steps)))
	return def, nil
}

func (s *definitionService) Get(ctx context.Context, tenantID, id string) (*entity.Definition, error) {
	key := tenantID + "/" + id
	if item := s.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	def, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, def, ttlcache.DefaultTTL)
	return def, nil
}

func (s *definitionService) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Definition, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

// Update applies a patch to a definition. Structural edits go through the
// dependency resolver before being accepted, regardless of the active flag.
func (s *definitionService) Update(ctx context.Context, tenantID, id string, patch DefinitionPatch) (*entity.Definition, error) {
	def, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if err := utils.ValidateName(*patch.Name); err != nil {
			return nil, workflow.NewValidation("definition name: %v", err)
		}
		def.Name = *patch.Name
	}
	if patch.NameLocalized != nil {
		def.NameLocalized = *patch.NameLocalized
	}
	if patch.Description != nil {
		def.Description = *patch.Description
	}
	if patch.IsActive != nil {
		def.IsActive = *patch.IsActive
	}
	if patch.Steps != nil {
		steps, err := buildStepArena(patch.Steps)
		if err != nil {
			return nil, err
		}
		def.Steps = steps
	}

	def.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, err
	}

	s.cache.Delete(tenantID + "/" + id)
	s.logger.Info("definition updated",
		zap.String("tenant_id", tenantID),
		zap.String("definition_id", id),
		zap.Bool("structural", patch.Steps != nil))
	return def, nil
}

// Delete removes a definition. Instances referencing it, finished ones
// included, keep it alive as the audit record.
func (s *definitionService) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := s.repo.GetByID(ctx, tenantID, id); err != nil {
		return err
	}

	count, err := s.instanceRepo.CountByDefinition(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return workflow.NewConflict("definition %s is referenced by %d instance(s)", id, count)
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.Delete(tenantID + "/" + id)
	s.logger.Info("definition deleted",
		zap.String("tenant_id", tenantID),
		zap.String("definition_id", id))
	return nil
}
