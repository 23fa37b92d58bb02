// Package vehicle holds vehicle state, the per-tick kinematics and the
// registry that owns every live vehicle.
package vehicle

import (
	"math"

	"github.com/ukydev/intersection-twin/internal/lane"
)

const (
	MaxSpeed  = 10.0 // units/s
	AccelRate = 10.0 // units/s²
	BrakeRate = 30.0 // units/s²

	// BrakingZone is how close to a red stop line a vehicle starts braking.
	BrakingZone = 3.0
	// SensingZone is how close to the stop line a vehicle counts as waiting
	// for the controller. It is wider than BrakingZone so the controller sees
	// traffic before it is forced to stop.
	SensingZone = 7.0
	// SafetyGap is the minimum following distance.
	SafetyGap = 6.0
	// SpawnClearance is the free radius required around a spawn point.
	SpawnClearance = 8.0
	// BoundaryRadius is the distance from the centre beyond which vehicles leave.
	BoundaryRadius = 60.0
)

// Vehicle is a single car on one approach lane.
type Vehicle struct {
	ID       string    `json:"id"`
	Lane     lane.ID   `json:"lane"`
	Position lane.Vec2 `json:"position"`
	Speed    float64   `json:"speed"`
	Waiting  bool      `json:"waiting"`
}

// Facing returns the heading the vehicle is rendered with.
func (v Vehicle) Facing() float64 {
	return lane.Get(v.Lane).Facing
}

// Sensed reports whether the vehicle is inside the controller's sensing zone.
func (v Vehicle) Sensed() bool {
	dist, approaching := lane.Get(v.Lane).Approach(v.Position)
	return approaching && dist <= SensingZone
}

// signalStop reports whether v must brake for a red signal.
func signalStop(v *Vehicle, green lane.ID) bool {
	if v.Lane == green {
		return false
	}
	dist, approaching := lane.Get(v.Lane).Approach(v.Position)
	return approaching && dist < BrakingZone
}

// followStop reports whether any vehicle ahead on the same lane is closer
// than SafetyGap.
func followStop(v *Vehicle, others []*Vehicle) bool {
	l := lane.Get(v.Lane)
	for _, o := range others {
		if o == v || o.Lane != v.Lane {
			continue
		}
		if gap, ahead := l.Gap(v.Position, o.Position); ahead && gap < SafetyGap {
			return true
		}
	}
	return false
}

// Step advances v by one tick of dt seconds given the current green lane and
// the other vehicles on the road.
func Step(v *Vehicle, green lane.ID, others []*Vehicle, dt float64) {
	mustStop := signalStop(v, green)
	if !mustStop {
		mustStop = followStop(v, others)
	}

	if mustStop {
		v.Waiting = true
		v.Speed = math.Max(0, v.Speed-BrakeRate*dt)
	} else {
		v.Waiting = false
		v.Speed = math.Min(MaxSpeed, v.Speed+AccelRate*dt)
	}

	v.Position = lane.Get(v.Lane).Advance(v.Position, v.Speed*dt)
}

// OutOfBounds reports whether v has left the simulated area.
func (v Vehicle) OutOfBounds() bool {
	return v.Position.Length() > BoundaryRadius
}
