package entity

import (
	"time"

	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// Instance is the live execution record of a generic workflow. It carries
// its own snapshot of the definition's steps, so later template edits never
// retroactively corrupt a running instance.
type Instance struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	DefinitionID string `json:"definition_id"`
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`

	Status        workflow.Status        `json:"status"`
	CurrentStepID string                 `json:"current_step_id,omitempty"`
	Steps         map[string]*Step       `json:"steps"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	History       []HistoryEntry         `json:"history"`

	StartedAt    time.Time  `json:"started_at"`
	StartedBy    string     `json:"started_by"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	FailReason   string     `json:"fail_reason,omitempty"`

	// Version guards optimistic concurrent updates; bumped on every write.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentStep returns the snapshot step the instance is positioned at, or
// nil before first activation.
func (i *Instance) CurrentStep() *Step {
	if i.CurrentStepID == "" {
		return nil
	}
	return i.Steps[i.CurrentStepID]
}

// NextStep returns the snapshot step with the next order index after the
// current one, or nil when the current step is last.
func (i *Instance) NextStep() *Step {
	ordered := OrderedStepList(i.Steps)
	for idx, s := range ordered {
		if s.ID == i.CurrentStepID && idx+1 < len(ordered) {
			return ordered[idx+1]
		}
	}
	return nil
}

// VisitedSteps derives the set of step ids the instance has entered from its
// history. The set is a pure function of recorded state.
func (i *Instance) VisitedSteps() map[string]bool {
	visited := make(map[string]bool)
	for _, entry := range i.History {
		switch {
		case entry.Action == ActionStarted && entry.Started != nil && entry.Started.InitialStepID != "":
			visited[entry.Started.InitialStepID] = true
		case entry.Action == ActionStepAdvanced && entry.StepAdvanced != nil:
			visited[entry.StepAdvanced.FromStepID] = true
			visited[entry.StepAdvanced.ToStepID] = true
		}
	}
	return visited
}

// AppendHistory appends an entry to the audit trail.
func (i *Instance) AppendHistory(entry HistoryEntry) {
	i.History = append(i.History, entry)
}
