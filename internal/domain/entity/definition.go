package entity

import (
	"sort"
	"time"

	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// TriggerType describes how a step is expected to be driven forward.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerEvent     TriggerType = "event"
	TriggerSchedule  TriggerType = "schedule"
	TriggerCondition TriggerType = "condition"
)

var validTriggerTypes = map[TriggerType]bool{
	TriggerManual:    true,
	TriggerEvent:     true,
	TriggerSchedule:  true,
	TriggerCondition: true,
}

// IsValid returns true if the trigger type is one of the known kinds.
func (t TriggerType) IsValid() bool {
	return validTriggerTypes[t]
}

// Step is one named position inside a generic workflow definition. Steps are
// addressed by stable id, never by list position.
type Step struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Order         int               `json:"order"`
	Trigger       TriggerType       `json:"trigger"`
	TriggerConfig map[string]string `json:"trigger_config,omitempty"`
	IsInitial     bool              `json:"is_initial"`
	IsFinal       bool              `json:"is_final"`
	DependsOn     []string          `json:"depends_on,omitempty"`
}

// NodeID implements workflow.Node.
func (s *Step) NodeID() string { return s.ID }

// NodeOrder implements workflow.Node.
func (s *Step) NodeOrder() int { return s.Order }

// NodeDependencies implements workflow.Node.
func (s *Step) NodeDependencies() []string { return s.DependsOn }

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	out := *s
	out.DependsOn = append([]string(nil), s.DependsOn...)
	if s.TriggerConfig != nil {
		out.TriggerConfig = make(map[string]string, len(s.TriggerConfig))
		for k, v := range s.TriggerConfig {
			out.TriggerConfig[k] = v
		}
	}
	return &out
}

// Definition is the reusable blueprint a generic process instance is created
// from. Owned by exactly one tenant; immutable from the point of view of
// running instances, which carry their own snapshot of Steps.
type Definition struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	Name          string           `json:"name"`
	NameLocalized string           `json:"name_localized,omitempty"`
	Description   string           `json:"description,omitempty"`
	EntityType    string           `json:"entity_type"`
	Steps         map[string]*Step `json:"steps"`
	IsActive      bool             `json:"is_active"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OrderedSteps returns the steps sorted by order index, id as tie-break.
func (d *Definition) OrderedSteps() []*Step {
	return OrderedStepList(d.Steps)
}

// OrderedStepList sorts a step arena by order index, id as tie-break.
func OrderedStepList(steps map[string]*Step) []*Step {
	out := make([]*Step, 0, len(steps))
	for _, s := range steps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InitialStep returns the step flagged is_initial, falling back to the first
// step by order, or nil for an empty definition.
func (d *Definition) InitialStep() *Step {
	ordered := d.OrderedSteps()
	for _, s := range ordered {
		if s.IsInitial {
			return s
		}
	}
	if len(ordered) > 0 {
		return ordered[0]
	}
	return nil
}

// CloneSteps deep-copies the step arena, used to snapshot the definition
// shape into an instance at start time.
func (d *Definition) CloneSteps() map[string]*Step {
	out := make(map[string]*Step, len(d.Steps))
	for id, s := range d.Steps {
		out[id] = s.Clone()
	}
	return out
}

// Nodes views the steps as dependency-graph vertices.
func (d *Definition) Nodes() []workflow.Node {
	nodes := make([]workflow.Node, 0, len(d.Steps))
	for _, s := range d.Steps {
		nodes = append(nodes, s)
	}
	return nodes
}

// StepNodes views an already-snapshotted step arena as graph vertices.
func StepNodes(steps map[string]*Step) []workflow.Node {
	nodes := make([]workflow.Node, 0, len(steps))
	for _, s := range steps {
		nodes = append(nodes, s)
	}
	return nodes
}
