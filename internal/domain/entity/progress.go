package entity

import "time"

// CaseStatus is the coarse lifecycle of a case's stage progress.
type CaseStatus string

const (
	CaseActive    CaseStatus = "active"
	CaseCompleted CaseStatus = "completed"
)

// StageProgress tracks a single case's position inside a CaseTemplate: the
// current stage, the requirements satisfied so far, and the full transition
// history. Like Instance, it snapshots the template shape at initialization.
type StageProgress struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	CaseID     string `json:"case_id"`
	TemplateID string `json:"template_id"`

	Status         CaseStatus        `json:"status"`
	CurrentStageID string            `json:"current_stage_id"`
	Mode           TransitionMode    `json:"mode"`
	Stages         map[string]*Stage `json:"stages"`
	Transitions    []Transition      `json:"transitions,omitempty"`

	CompletedRequirements []string       `json:"completed_requirements,omitempty"`
	History               []HistoryEntry `json:"history"`

	StartedAt   time.Time  `json:"started_at"`
	StartedBy   string     `json:"started_by"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Version guards optimistic concurrent updates; bumped on every write.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentStage returns the snapshot stage the case is positioned at.
func (p *StageProgress) CurrentStage() *Stage {
	return p.Stages[p.CurrentStageID]
}

// HasRequirement reports whether the requirement id is already satisfied.
func (p *StageProgress) HasRequirement(requirementID string) bool {
	for _, id := range p.CompletedRequirements {
		if id == requirementID {
			return true
		}
	}
	return false
}

// AddRequirement records a satisfied requirement. Adding an id twice leaves
// the set unchanged.
func (p *StageProgress) AddRequirement(requirementID string) bool {
	if p.HasRequirement(requirementID) {
		return false
	}
	p.CompletedRequirements = append(p.CompletedRequirements, requirementID)
	return true
}

// VisitedStages derives the set of stage ids the case has entered from its
// history, including the initial stage.
func (p *StageProgress) VisitedStages() map[string]bool {
	visited := make(map[string]bool)
	for _, entry := range p.History {
		switch {
		case entry.Action == ActionStarted && entry.Started != nil && entry.Started.InitialStepID != "":
			visited[entry.Started.InitialStepID] = true
		case entry.Action == ActionStageMoved && entry.StageMoved != nil:
			visited[entry.StageMoved.FromStageID] = true
			visited[entry.StageMoved.ToStageID] = true
		}
	}
	return visited
}

// SatisfiedIDs is the set a stage dependency may be resolved against: stage
// ids already visited plus requirement ids already completed.
func (p *StageProgress) SatisfiedIDs() map[string]bool {
	satisfied := p.VisitedStages()
	for _, id := range p.CompletedRequirements {
		satisfied[id] = true
	}
	return satisfied
}

// AllowsTransition reports whether a declared edge from -> to exists in the
// snapshot. Only meaningful in explicit mode.
func (p *StageProgress) AllowsTransition(from, to string) bool {
	for _, t := range p.Transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// AppendHistory appends an entry to the audit trail.
func (p *StageProgress) AppendHistory(entry HistoryEntry) {
	p.History = append(p.History, entry)
}
