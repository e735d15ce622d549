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

// StartInstanceInput carries the parameters of a workflow start.
type StartInstanceInput struct {
	TenantID     string
	DefinitionID string
	EntityType   string
	EntityID     string
	Variables    map[string]interface{}
	Actor        string
}

// AdvanceStepInput carries the parameters of a step advance. Result is
// merged into the instance's variables.
type AdvanceStepInput struct {
	TenantID   string
	InstanceID string
	Result     map[string]interface{}
	Actor      string
}

// InstanceService is the generic workflow instance engine. Every mutation is
// a single atomic update paired with a history entry.
type InstanceService interface {
	Start(ctx context.Context, input StartInstanceInput) (*entity.Instance, error)
	// Activate is the event hook moving a pending instance (non-manual
	// trigger) into running.
	Activate(ctx context.Context, tenantID, instanceID, actor string) (*entity.Instance, error)
	AdvanceStep(ctx context.Context, input AdvanceStepInput) (*entity.Instance, error)
	Pause(ctx context.Context, tenantID, instanceID, actor string) (*entity.Instance, error)
	Resume(ctx context.Context, tenantID, instanceID, actor string) (*entity.Instance, error)
	Cancel(ctx context.Context, tenantID, instanceID, reason, actor string) (*entity.Instance, error)
	Fail(ctx context.Context, tenantID, instanceID, reason, actor string) (*entity.Instance, error)
	Get(ctx context.Context, tenantID, instanceID string) (*entity.Instance, error)
	ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*entity.Instance, error)
}

type instanceService struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	entities       port.EntityResolver
	clock          clock.Clock
	logger         *zap.Logger
}

// NewInstanceService creates the generic instance engine.
func NewInstanceService(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	entities port.EntityResolver,
	clk clock.Clock,
	logger *zap.Logger,
) InstanceService {
	return &instanceService{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		entities:       entities,
		clock:          clk,
		logger:         logger,
	}
}

// Start creates an instance positioned at the definition's initial step,
// with the definition shape snapshotted into the record.
func (s *instanceService) Start(ctx context.Context, input StartInstanceInput) (*entity.Instance, error) {
	if input.TenantID == "" {
		return nil, workflow.NewValidation("tenant id is required")
	}
	if input.EntityType == "" || input.EntityID == "" {
		return nil, workflow.NewValidation("entity reference is required")
	}

	def, err := s.definitionRepo.GetByID(ctx, input.TenantID, input.DefinitionID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, workflow.NewNotFound("definition %s is not active", input.DefinitionID)
	}
	if def.EntityType != input.EntityType {
		return nil, workflow.NewValidation("definition %s targets entity type %q, not %q",
			def.ID, def.EntityType, input.EntityType)
	}

	if err := s.entities.Resolve(ctx, input.TenantID, input.EntityType, input.EntityID); err != nil {
		return nil, err
	}

	initial := def.InitialStep()
	if initial == nil {
		return nil, workflow.NewValidation("definition %s has no steps", def.ID)
	}

	// Non-manual initial steps await their external trigger before running.
	status := workflow.StatusRunning
	if initial.Trigger != entity.TriggerManual {
		status = workflow.StatusPending
	}

	variables := make(map[string]interface{}, len(input.Variables))
	for k, v := range input.Variables {
		variables[k] = v
	}

	now := s.clock.Now().UTC()
	inst := &entity.Instance{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		DefinitionID:  def.ID,
		EntityType:    input.EntityType,
		EntityID:      input.EntityID,
		Status:        status,
		CurrentStepID: initial.ID,
		Steps:         def.CloneSteps(),
		Variables:     variables,
		StartedAt:     now,
		StartedBy:     input.Actor,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inst.AppendHistory(entity.HistoryEntry{
		Action:    entity.ActionStarted,
		Timestamp: now,
		Actor:     input.Actor,
		Started: &entity.StartedDetails{
			DefinitionID:  def.ID,
			InitialStepID: initial.ID,
			EntityType:    input.EntityType,
			EntityID:      input.EntityID,
		},
	})

	if err := s.instanceRepo.Create(ctx, inst); err != nil {
		return nil, err
	}

	s.logger.Info("instance started",
		zap.String("tenant_id", inst.TenantID),
		zap.String("instance_id", inst.ID),
		zap.String("definition_id", def.ID),
		zap.String("status", inst.Status.String()))
	return inst, nil
}

func (s *instanceService) Activate(ctx context.Context, tenantID, instanceID, actor string) (*entity.Instance, error) {
	return s.fireStatusTrigger(ctx, tenantID, instanceID, actor,
		workflow.TriggerActivate, []workflow.Status{workflow.StatusPending}, entity.ActionActivated)
}

// AdvanceStep moves a running instance to its current step's successor,
// merging the step result into variables. Advancing into a final step
// completes the instance.
func (s *instanceService) AdvanceStep(ctx context.Context, input AdvanceStepInput) (*entity.Instance, error) {
	inst, err := s.instanceRepo.AtomicUpdate(ctx, input.TenantID, input.InstanceID,
		[]workflow.Status{workflow.StatusRunning},
		func(inst *entity.Instance) error {
			current := inst.CurrentStep()
			if current == nil {
				return workflow.NewInvalidState("instance %s has no current step", inst.ID)
			}

			target := current
			if !current.IsFinal {
				target = inst.NextStep()
				if target == nil {
					return workflow.NewInvalidState("step %q has no successor and is not final", current.ID)
				}
			}

			if missing := workflow.MissingDependencies(target, inst.VisitedSteps()); len(missing) > 0 {
				return &workflow.Error{
					Kind:    workflow.KindConflict,
					Message: "step dependencies are not satisfied",
					StepIDs: missing,
				}
			}

			now := s.clock.Now().UTC()
			if inst.Variables == nil && len(input.Result) > 0 {
				inst.Variables = make(map[string]interface{}, len(input.Result))
			}
			for k, v := range input.Result {
				inst.Variables[k] = v
			}

			from := current.ID
			inst.CurrentStepID = target.ID
			inst.AppendHistory(entity.HistoryEntry{
				Action:    entity.ActionStepAdvanced,
				Timestamp: now,
				Actor:     input.Actor,
				StepAdvanced: &entity.StepAdvancedDetails{
					FromStepID: from,
					ToStepID:   target.ID,
				},
			})

			if target.IsFinal {
				machine, err := workflow.NewStatusMachine(inst.Status)
				if err != nil {
					return err
				}
				next, err := machine.Fire(workflow.TriggerComplete)
				if err != nil {
					return err
				}
				inst.Status = next
				completedAt := now
				inst.CompletedAt = &completedAt
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("instance advanced",
		zap.String("tenant_id", input.TenantID),
		zap.String("instance_id", inst.ID),
		zap.String("current_step", inst.CurrentStepID),
		zap.String("status", inst.Status.String()))
	return inst, nil
}

func (s *instanceService) Pause(ctx context.Context, tenantID, instanceID, actor string) (*entity.Instance, error) {
	return s.fireStatusTrigger(ctx, tenantID, instanceID, actor,
		workflow.TriggerPause, []workflow.Status{workflow.StatusRunning}, entity.ActionPaused)
}

func (s *instanceService) Resume(ctx context.Context, tenantID, instanceID, actor string) (*entity.Instance, error) {
	return s.fireStatusTrigger(ctx, tenantID, instanceID, actor,
		workflow.TriggerResume, []workflow.Status{workflow.StatusPaused}, entity.ActionResumed)
}

// Cancel is legal from any non-terminal status and is itself terminal.
func (s *instanceService) Cancel(ctx context.Context, tenantID, instanceID, reason, actor string) (*entity.Instance, error) {
	inst, err := s.instanceRepo.AtomicUpdate(ctx, tenantID, instanceID,
		[]workflow.Status{workflow.StatusPending, workflow.StatusRunning, workflow.StatusPaused},
		func(inst *entity.Instance) error {
			machine, err := workflow.NewStatusMachine(inst.Status)
			if err != nil {
				return err
			}
			next, err := machine.Fire(workflow.TriggerCancel)
			if err != nil {
				return err
			}
			now := s.clock.Now().UTC()
			inst.Status = next
			cancelledAt := now
			inst.CancelledAt = &cancelledAt
			inst.CancelReason = reason
			inst.AppendHistory(entity.HistoryEntry{
				Action:    entity.ActionCancelled,
				Timestamp: now,
				Actor:     actor,
				Cancelled: &entity.CancelledDetails{Reason: reason},
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("instance cancelled",
		zap.String("tenant_id", tenantID),
		zap.String("instance_id", instanceID),
		zap.String("reason", reason))
	return inst, nil
}

// Fail marks a running instance failed, recording the reason.
func (s *instanceService) Fail(ctx context.Context, tenantID, instanceID, reason, actor string) (*entity.Instance, error) {
	inst, err := s.instanceRepo.AtomicUpdate(ctx, tenantID, instanceID,
		[]workflow.Status{workflow.StatusRunning},
		func(inst *entity.Instance) error {
			machine, err := workflow.NewStatusMachine(inst.Status)
			if err != nil {
				return err
			}
			next, err := machine.Fire(workflow.TriggerFail)
			if err != nil {
				return err
			}
			now := s.clock.Now().UTC()
			inst.Status = next
			completedAt := now
			inst.CompletedAt = &completedAt
			inst.FailReason = reason
			inst.AppendHistory(entity.HistoryEntry{
				Action:    entity.ActionFailed,
				Timestamp: now,
				Actor:     actor,
				Failed:    &entity.FailedDetails{Reason: reason},
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("instance failed",
		zap.String("tenant_id", tenantID),
		zap.String("instance_id", instanceID),
		zap.String("reason", reason))
	return inst, nil
}

func (s *instanceService) Get(ctx context.Context, tenantID, instanceID string) (*entity.Instance, error) {
	return s.instanceRepo.GetByID(ctx, tenantID, instanceID)
}

func (s *instanceService) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*entity.Instance, error) {
	return s.instanceRepo.ListByEntity(ctx, tenantID, entityType, entityID)
}

// fireStatusTrigger handles the status-only transitions that share a shape:
// fire the trigger, append the matching history entry.
func (s *instanceService) fireStatusTrigger(
	ctx context.Context,
	tenantID, instanceID, actor string,
	trigger workflow.Trigger,
	expected []workflow.Status,
	action entity.HistoryAction,
) (*entity.Instance, error) {
	inst, err := s.instanceRepo.AtomicUpdate(ctx, tenantID, instanceID, expected,
		func(inst *entity.Instance) error {
			machine, err := workflow.NewStatusMachine(inst.Status)
			if err != nil {
				return err
			}
			next, err := machine.Fire(trigger)
			if err != nil {
				return err
			}
			inst.Status = next
			inst.AppendHistory(entity.HistoryEntry{
				Action:    action,
				Timestamp: s.clock.Now().UTC(),
				Actor:     actor,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("instance status changed",
		zap.String("tenant_id", tenantID),
		zap.String("instance_id", instanceID),
		zap.String("trigger", trigger.String()),
		zap.String("status", inst.Status.String()))
	return inst, nil
}
