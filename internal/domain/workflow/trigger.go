package workflow

// Trigger represents an operation that can cause a status transition
type Trigger string

const (
	TriggerActivate Trigger = "ACTIVATE"
	TriggerPause    Trigger = "PAUSE"
	TriggerResume   Trigger = "RESUME"
	TriggerComplete Trigger = "COMPLETE"
	TriggerFail     Trigger = "FAIL"
	TriggerCancel   Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
