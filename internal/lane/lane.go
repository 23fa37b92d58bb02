// Package lane describes the static geometry of the four approach lanes.
package lane

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ID identifies one of the four approach lanes.
type ID int

// None marks the absence of a green lane (all-red).
const None ID = -1

// Count is the number of approach lanes.
const Count = 4

const (
	// StopLineOffset is the distance from the centre to every stop line.
	StopLineOffset = 5.0
	// LaneOffset is the lateral offset of each lane from the road axis.
	LaneOffset = 1.75
	// SpawnDistance is how far from the centre vehicles enter.
	SpawnDistance = 40.0
)

// Vec2 is a point or direction on the ground plane (X, Z). The maths is done
// in r2 with Z mapped onto Y.
type Vec2 struct {
	X float64 `json:"x" bson:"x"`
	Z float64 `json:"z" bson:"z"`
}

func (v Vec2) vec() r2.Vec { return r2.Vec{X: v.X, Y: v.Z} }

func fromR2(p r2.Vec) Vec2 { return Vec2{X: p.X, Z: p.Y} }

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 { return fromR2(r2.Add(v.vec(), o.vec())) }

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 { return fromR2(r2.Sub(v.vec(), o.vec())) }

// Scale returns v*k.
func (v Vec2) Scale(k float64) Vec2 { return fromR2(r2.Scale(k, v.vec())) }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float64 { return r2.Dot(v.vec(), o.vec()) }

// Length returns the Euclidean norm of v.
func (v Vec2) Length() float64 { return r2.Norm(v.vec()) }

// Lane is the fixed description of one approach.
//
// Positions along the lane are measured as progress = dot(position, Direction),
// so every lane moves towards increasing progress and "ahead" always means a
// larger progress value.
type Lane struct {
	ID        ID
	Direction Vec2
	Spawn     Vec2
	// StopLine is the progress coordinate of the stop line.
	StopLine float64
	// Facing is the heading in radians around the vertical axis.
	Facing float64
	Name   string
}

var lanes = [Count]Lane{
	{ID: 0, Direction: Vec2{Z: 1}, Spawn: Vec2{X: -LaneOffset, Z: -SpawnDistance}, StopLine: -StopLineOffset, Facing: 0, Name: "north-south"},
	{ID: 1, Direction: Vec2{X: -1}, Spawn: Vec2{X: SpawnDistance, Z: -LaneOffset}, StopLine: -StopLineOffset, Facing: -math.Pi / 2, Name: "east-west"},
	{ID: 2, Direction: Vec2{Z: -1}, Spawn: Vec2{X: LaneOffset, Z: SpawnDistance}, StopLine: -StopLineOffset, Facing: math.Pi, Name: "south-north"},
	{ID: 3, Direction: Vec2{X: 1}, Spawn: Vec2{X: -SpawnDistance, Z: LaneOffset}, StopLine: -StopLineOffset, Facing: math.Pi / 2, Name: "west-east"},
}

// Valid reports whether id names one of the four lanes.
func (id ID) Valid() bool {
	return id >= 0 && id < Count
}

// Next returns the lane offset steps further round the cycle.
func (id ID) Next(offset int) ID {
	return ID((int(id) + offset) % Count)
}

func (id ID) String() string {
	if id == None {
		return "none"
	}
	return fmt.Sprintf("%d", int(id))
}

// Get returns the geometry of lane id. It panics on an invalid id; callers
// validate external input with Valid first.
func Get(id ID) Lane {
	if !id.Valid() {
		panic(fmt.Sprintf("lane: invalid id %d", int(id)))
	}
	return lanes[id]
}

// All returns the four lanes in id order.
func All() [Count]Lane {
	return lanes
}

// Progress returns how far p is along the lane direction.
func (l Lane) Progress(p Vec2) float64 {
	return p.Dot(l.Direction)
}

// Approach reports whether p is still before the stop line and, if so, its
// distance to it.
func (l Lane) Approach(p Vec2) (dist float64, approaching bool) {
	s := l.Progress(p)
	if s >= l.StopLine {
		return 0, false
	}
	return l.StopLine - s, true
}

// Gap returns the longitudinal distance from p to other when other is ahead
// of p on this lane.
func (l Lane) Gap(p, other Vec2) (gap float64, ahead bool) {
	d := l.Progress(other) - l.Progress(p)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// Advance moves p forward along the lane by dist.
func (l Lane) Advance(p Vec2, dist float64) Vec2 {
	return p.Add(l.Direction.Scale(dist))
}
