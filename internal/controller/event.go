package controller

import (
	"fmt"
	"time"

	"github.com/ukydev/intersection-twin/internal/lane"
)

// EventKind classifies controller transitions.
type EventKind string

const (
	EventOnline          EventKind = "online"
	EventPrioritySwitch  EventKind = "priority_switch"
	EventTimeoutSwitch   EventKind = "timeout_switch"
	EventGreen           EventKind = "green"
	EventOverrideStarted EventKind = "override_started"
	EventOverrideEnded   EventKind = "override_ended"
)

// Event is a typed controller transition. Lane is the lane the event is
// about; From is only set for timeout switches.
type Event struct {
	Kind EventKind
	Lane lane.ID
	From lane.ID
	At   time.Time
}

// Message renders the event in the wording downstream log consumers match on.
func (e Event) Message() string {
	switch e.Kind {
	case EventOnline:
		return "ONLINE"
	case EventPrioritySwitch:
		return fmt.Sprintf("Priority Switch -> Lane %d", e.Lane)
	case EventTimeoutSwitch:
		return fmt.Sprintf("Timeout Switch: Lane %d -> %d", e.From, e.Lane)
	case EventGreen:
		return fmt.Sprintf("Green: Lane %d", e.Lane)
	case EventOverrideStarted:
		return fmt.Sprintf("Override Active: Lane %d", e.Lane)
	case EventOverrideEnded:
		return "Override Ended"
	default:
		return string(e.Kind)
	}
}
