// Package controller implements the signal state machine that grants
// right-of-way to one lane at a time.
//
// The controller is evaluated once per tick. Normal cycling hands the green
// to the next lane every SwitchInterval, a priority switch preempts that
// when the green lane is empty and another lane has traffic waiting, and
// every switch passes through an all-red transition of TransitionDelay. An
// override forces a lane green immediately, without the all-red delay, until
// it expires.
package controller

import (
	"time"

	"github.com/ukydev/intersection-twin/internal/lane"
)

const (
	// TransitionDelay is how long every lane stays red before a switch
	// completes.
	TransitionDelay = 500 * time.Millisecond
	// SwitchInterval is how long a lane may hold the green before the
	// cycle moves on, whether or not it still has traffic.
	SwitchInterval = 5000 * time.Millisecond
)

// Phase is the controller mode.
type Phase string

const (
	PhaseNormal        Phase = "NORMAL"
	PhaseTransitioning Phase = "TRANSITIONING"
	PhaseOverride      Phase = "OVERRIDE"
)

// Override forces Lane green for Duration.
type Override struct {
	Lane     lane.ID
	Duration time.Duration
}

// State is the full controller record. Fields that only apply to one phase
// are left untouched outside it.
type State struct {
	Phase           Phase
	GreenLane       lane.ID
	LastSwitch      time.Time
	TransitionStart time.Time
	SwitchTarget    lane.ID
	OverrideLane    lane.ID
	OverrideEnd     time.Time
}

// Controller owns the intersection state. It is not safe for concurrent use.
type Controller struct {
	state State
}

// New returns a controller with lane 0 green, started at now.
func New(now time.Time) *Controller {
	return &Controller{state: State{
		Phase:        PhaseNormal,
		GreenLane:    0,
		LastSwitch:   now,
		SwitchTarget: 0,
		OverrideLane: lane.None,
	}}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	return c.state
}

// GreenLane returns the lane currently allowed through, or lane.None.
func (c *Controller) GreenLane() lane.ID {
	return c.state.GreenLane
}

// Evaluate advances the state machine to now. waiting reports which lanes
// have a vehicle in the sensing zone; pending is an override to apply, if
// any. The returned events describe every transition taken.
func (c *Controller) Evaluate(now time.Time, waiting [lane.Count]bool, pending *Override) []Event {
	s := &c.state

	if pending != nil {
		s.Phase = PhaseOverride
		s.GreenLane = pending.Lane
		s.OverrideLane = pending.Lane
		s.OverrideEnd = now.Add(pending.Duration)
		return []Event{{Kind: EventOverrideStarted, Lane: pending.Lane, From: lane.None, At: now}}
	}

	switch s.Phase {
	case PhaseTransitioning:
		if now.Sub(s.TransitionStart) < TransitionDelay {
			return nil
		}
		s.GreenLane = s.SwitchTarget
		s.Phase = PhaseNormal
		s.LastSwitch = now
		return []Event{{Kind: EventGreen, Lane: s.GreenLane, From: lane.None, At: now}}

	case PhaseOverride:
		if !now.After(s.OverrideEnd) {
			return nil
		}
		s.Phase = PhaseNormal
		s.LastSwitch = now
		return []Event{{Kind: EventOverrideEnded, Lane: s.GreenLane, From: lane.None, At: now}}
	}

	var ev Event
	triggered := false

	if !waiting[s.GreenLane] {
		for i := 1; i < lane.Count; i++ {
			candidate := s.GreenLane.Next(i)
			if waiting[candidate] {
				ev = Event{Kind: EventPrioritySwitch, Lane: candidate, From: lane.None, At: now}
				triggered = true
				break
			}
		}
	}

	if !triggered && now.Sub(s.LastSwitch) > SwitchInterval {
		ev = Event{Kind: EventTimeoutSwitch, Lane: s.GreenLane.Next(1), From: s.GreenLane, At: now}
		triggered = true
	}

	if !triggered {
		return nil
	}

	s.SwitchTarget = ev.Lane
	s.Phase = PhaseTransitioning
	s.GreenLane = lane.None
	s.TransitionStart = now
	return []Event{ev}
}
