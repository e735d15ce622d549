package service

import (
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
	"github.com/qanoonhq/lexflow/pkg/utils"
)

// buildStepArena validates an ordered step list and returns it keyed by id.
// Order indices are assigned from list position when the caller omitted them
// all; otherwise they must already be unique.
func buildStepArena(steps []*entity.Step) (map[string]*entity.Step, error) {
	if len(steps) == 0 {
		return nil, workflow.NewValidation("definition requires at least one step")
	}

	assignOrders(stepOrders(steps))

	arena := make(map[string]*entity.Step, len(steps))
	seenOrders := make(map[int]string, len(steps))
	initials := 0
	for _, s := range steps {
		if err := utils.ValidateIdentifier(s.ID); err != nil {
			return nil, workflow.NewValidation("step id: %v", err)
		}
		if err := utils.ValidateName(s.Name); err != nil {
			return nil, workflow.NewValidation("step %q: %v", s.ID, err)
		}
		if _, dup := arena[s.ID]; dup {
			return nil, workflow.NewValidation("duplicate step id %q", s.ID)
		}
		if s.Trigger == "" {
			s.Trigger = entity.TriggerManual
		}
		if !s.Trigger.IsValid() {
			return nil, workflow.NewValidation("step %q: unknown trigger type %q", s.ID, s.Trigger)
		}
		if other, dup := seenOrders[s.Order]; dup {
			return nil, workflow.NewValidation("steps %q and %q share order index %d", other, s.ID, s.Order)
		}
		seenOrders[s.Order] = s.ID
		if s.IsInitial {
			initials++
		}
		arena[s.ID] = s.Clone()
	}
	if initials > 1 {
		return nil, workflow.NewValidation("at most one step may be marked initial, got %d", initials)
	}

	if err := workflow.ValidateGraph(entity.StepNodes(arena)); err != nil {
		return nil, err
	}
	return arena, nil
}

// buildStageArena is the stage-based counterpart of buildStepArena and
// additionally checks requirement id uniqueness within each stage.
func buildStageArena(stages []*entity.Stage) (map[string]*entity.Stage, error) {
	if len(stages) == 0 {
		return nil, workflow.NewValidation("template requires at least one stage")
	}

	assignOrders(stageOrders(stages))

	arena := make(map[string]*entity.Stage, len(stages))
	seenOrders := make(map[int]string, len(stages))
	initials := 0
	for _, s := range stages {
		if err := utils.ValidateIdentifier(s.ID); err != nil {
			return nil, workflow.NewValidation("stage id: %v", err)
		}
		if err := utils.ValidateName(s.Name); err != nil {
			return nil, workflow.NewValidation("stage %q: %v", s.ID, err)
		}
		if _, dup := arena[s.ID]; dup {
			return nil, workflow.NewValidation("duplicate stage id %q", s.ID)
		}
		reqs := make(map[string]bool, len(s.Requirements))
		for _, r := range s.Requirements {
			if err := utils.ValidateIdentifier(r.ID); err != nil {
				return nil, workflow.NewValidation("stage %q requirement id: %v", s.ID, err)
			}
			if reqs[r.ID] {
				return nil, workflow.NewValidation("stage %q: duplicate requirement id %q", s.ID, r.ID)
			}
			reqs[r.ID] = true
		}
		if other, dup := seenOrders[s.Order]; dup {
			return nil, workflow.NewValidation("stages %q and %q share order index %d", other, s.ID, s.Order)
		}
		seenOrders[s.Order] = s.ID
		if s.IsInitial {
			initials++
		}
		arena[s.ID] = s.Clone()
	}
	if initials > 1 {
		return nil, workflow.NewValidation("at most one stage may be marked initial, got %d", initials)
	}

	if err := workflow.ValidateGraph(entity.StageNodes(arena)); err != nil {
		return nil, err
	}
	return arena, nil
}

// validateTransitions checks that every declared edge references stages that
// exist in the arena.
func validateTransitions(transitions []entity.Transition, stages map[string]*entity.Stage) error {
	for _, t := range transitions {
		if _, ok := stages[t.From]; !ok {
			return workflow.NewValidation("transition references unknown stage %q", t.From)
		}
		if _, ok := stages[t.To]; !ok {
			return workflow.NewValidation("transition references unknown stage %q", t.To)
		}
	}
	return nil
}

// assignOrders fills in ascending order indices when the caller left every
// index at zero.
func assignOrders(orders []*int) {
	if len(orders) < 2 {
		return
	}
	for _, o := range orders {
		if *o != 0 {
			return
		}
	}
	for i, o := range orders {
		*o = i
	}
}

func stepOrders(steps []*entity.Step) []*int {
	out := make([]*int, len(steps))
	for i := range steps {
		out[i] = &steps[i].Order
	}
	return out
}

func stageOrders(stages []*entity.Stage) []*int {
	out := make([]*int, len(stages))
	for i := range stages {
		out[i] = &stages[i].Order
	}
	return out
}
