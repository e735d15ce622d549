package workflow

import (
	"fmt"
	"sort"
)

// lifecycle is the single legal status graph for generic instances:
// pending -> running -> {paused <-> running} -> {completed | failed | cancelled}.
// Cancel is permitted from every non-terminal status.
var lifecycle = map[Status]map[Trigger]Status{
	StatusPending: {
		TriggerActivate: StatusRunning,
		TriggerCancel:   StatusCancelled,
	},
	StatusRunning: {
		TriggerPause:    StatusPaused,
		TriggerComplete: StatusCompleted,
		TriggerFail:     StatusFailed,
		TriggerCancel:   StatusCancelled,
	},
	StatusPaused: {
		TriggerResume: StatusRunning,
		TriggerCancel: StatusCancelled,
	},
}

// Machine tracks a single instance's status and validates transitions
// against the lifecycle graph.
type Machine struct {
	current Status
}

// NewStatusMachine creates a machine positioned at the given status.
func NewStatusMachine(current Status) (*Machine, error) {
	if !current.IsValid() {
		return nil, NewValidation("invalid status %q", current)
	}
	return &Machine{current: current}, nil
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.current
}

// CanFire returns true if the trigger is permitted in the current status.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := lifecycle[m.current][trigger]
	return ok
}

// Fire executes the trigger, moving the machine to the resulting status.
func (m *Machine) Fire(trigger Trigger) (Status, error) {
	next, ok := lifecycle[m.current][trigger]
	if !ok {
		return m.current, NewInvalidState("cannot %s an instance in status %q", trigger, m.current)
	}
	m.current = next
	return next, nil
}

// PermittedTriggers returns the triggers that can fire in the current
// status, in stable order.
func (m *Machine) PermittedTriggers() []Trigger {
	permitted := make([]Trigger, 0, len(lifecycle[m.current]))
	for trigger := range lifecycle[m.current] {
		permitted = append(permitted, trigger)
	}
	sort.Slice(permitted, func(i, j int) bool { return permitted[i] < permitted[j] })
	return permitted
}

func init() {
	// The graph is hand-maintained; refuse to start with an entry that
	// points outside the valid status set.
	for from, edges := range lifecycle {
		if !from.IsValid() || from.IsTerminal() {
			panic(fmt.Sprintf("lifecycle: invalid source status %q", from))
		}
		for trigger, to := range edges {
			if !to.IsValid() {
				panic(fmt.Sprintf("lifecycle: trigger %s targets invalid status %q", trigger, to))
			}
		}
	}
}
