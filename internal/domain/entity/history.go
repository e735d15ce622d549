package entity

import "time"

// HistoryAction discriminates history entry variants. The set is closed:
// every mutation an engine performs maps to exactly one of these.
type HistoryAction string

const (
	ActionStarted              HistoryAction = "started"
	ActionActivated            HistoryAction = "activated"
	ActionStepAdvanced         HistoryAction = "step_advanced"
	ActionPaused               HistoryAction = "paused"
	ActionResumed              HistoryAction = "resumed"
	ActionFailed               HistoryAction = "failed"
	ActionCancelled            HistoryAction = "cancelled"
	ActionStageMoved           HistoryAction = "stage_moved"
	ActionRequirementCompleted HistoryAction = "requirement_completed"
)

// HistoryEntry is one element of the append-only audit trail embedded in
// every instance and progress record. Exactly one of the payload pointers is
// set, matching Action.
type HistoryEntry struct {
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Actor     string        `json:"actor"`

	Started              *StartedDetails              `json:"started,omitempty"`
	StepAdvanced         *StepAdvancedDetails         `json:"step_advanced,omitempty"`
	Failed               *FailedDetails               `json:"failed,omitempty"`
	Cancelled            *CancelledDetails            `json:"cancelled,omitempty"`
	StageMoved           *StageMovedDetails           `json:"stage_moved,omitempty"`
	RequirementCompleted *RequirementCompletedDetails `json:"requirement_completed,omitempty"`
}

// StartedDetails records where an execution record began.
type StartedDetails struct {
	DefinitionID  string `json:"definition_id"`
	InitialStepID string `json:"initial_step_id,omitempty"`
	EntityType    string `json:"entity_type,omitempty"`
	EntityID      string `json:"entity_id,omitempty"`
}

// StepAdvancedDetails records a generic-instance position change.
type StepAdvancedDetails struct {
	FromStepID string `json:"from_step_id"`
	ToStepID   string `json:"to_step_id"`
}

// FailedDetails records why an instance was marked failed.
type FailedDetails struct {
	Reason string `json:"reason"`
}

// CancelledDetails records why an instance was cancelled.
type CancelledDetails struct {
	Reason string `json:"reason"`
}

// StageMovedDetails records a case stage move.
type StageMovedDetails struct {
	FromStageID string `json:"from_stage_id"`
	ToStageID   string `json:"to_stage_id"`
	Notes       string `json:"notes,omitempty"`
}

// RequirementCompletedDetails records a requirement being satisfied.
type RequirementCompletedDetails struct {
	StageID       string            `json:"stage_id"`
	RequirementID string            `json:"requirement_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
