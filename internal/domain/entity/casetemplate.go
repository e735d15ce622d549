package entity

import (
	"sort"
	"time"

	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// TransitionMode controls how stage moves are validated: "linear" permits
// any move whose dependencies are satisfied, "explicit" additionally
// requires a declared transition edge from the current stage to the target.
type TransitionMode string

const (
	ModeLinear   TransitionMode = "linear"
	ModeExplicit TransitionMode = "explicit"
)

// IsValid returns true if the mode is one of the known modes.
func (m TransitionMode) IsValid() bool {
	return m == ModeLinear || m == ModeExplicit
}

// Requirement is a named condition attached to a stage that must be marked
// complete before dependents of the stage become reachable.
type Requirement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Stage is one named position inside a case workflow template.
type Stage struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Order        int           `json:"order"`
	Requirements []Requirement `json:"requirements,omitempty"`
	IsInitial    bool          `json:"is_initial"`
	IsFinal      bool          `json:"is_final"`
	DependsOn    []string      `json:"depends_on,omitempty"`
}

// NodeID implements workflow.Node.
func (s *Stage) NodeID() string { return s.ID }

// NodeOrder implements workflow.Node.
func (s *Stage) NodeOrder() int { return s.Order }

// NodeDependencies implements workflow.Node.
func (s *Stage) NodeDependencies() []string { return s.DependsOn }

// Clone returns a deep copy of the stage.
func (s *Stage) Clone() *Stage {
	out := *s
	out.Requirements = append([]Requirement(nil), s.Requirements...)
	out.DependsOn = append([]string(nil), s.DependsOn...)
	return &out
}

// Transition is an explicitly declared allowed edge between two stage ids.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CaseTemplate is the stage-based sibling of Definition: an ordered set of
// litigation stages with gating requirements and, in explicit mode, declared
// transition edges.
type CaseTemplate struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	Name          string            `json:"name"`
	NameLocalized string            `json:"name_localized,omitempty"`
	Description   string            `json:"description,omitempty"`
	Category      string            `json:"category,omitempty"`
	Mode          TransitionMode    `json:"mode"`
	Stages        map[string]*Stage `json:"stages"`
	Transitions   []Transition      `json:"transitions,omitempty"`
	IsActive      bool              `json:"is_active"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// OrderedStages returns the stages sorted by order index, id as tie-break.
func (t *CaseTemplate) OrderedStages() []*Stage {
	stages := make([]*Stage, 0, len(t.Stages))
	for _, s := range t.Stages {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool {
		if stages[i].Order != stages[j].Order {
			return stages[i].Order < stages[j].Order
		}
		return stages[i].ID < stages[j].ID
	})
	return stages
}

// InitialStage returns the stage flagged is_initial, falling back to the
// first stage by order, or nil for an empty template.
func (t *CaseTemplate) InitialStage() *Stage {
	ordered := t.OrderedStages()
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

// CloneStages deep-copies the stage arena for snapshotting into a progress
// record.
func (t *CaseTemplate) CloneStages() map[string]*Stage {
	out := make(map[string]*Stage, len(t.Stages))
	for id, s := range t.Stages {
		out[id] = s.Clone()
	}
	return out
}

// Nodes views the stages as dependency-graph vertices.
func (t *CaseTemplate) Nodes() []workflow.Node {
	nodes := make([]workflow.Node, 0, len(t.Stages))
	for _, s := range t.Stages {
		nodes = append(nodes, s)
	}
	return nodes
}

// StageNodes views an already-snapshotted stage arena as graph vertices.
func StageNodes(stages map[string]*Stage) []workflow.Node {
	nodes := make([]workflow.Node, 0, len(stages))
	for _, s := range stages {
		nodes = append(nodes, s)
	}
	return nodes
}
