package vehicle

import (
	"errors"

	"github.com/google/uuid"
	"github.com/ukydev/intersection-twin/internal/lane"
)

var (
	ErrInvalidLane  = errors.New("invalid lane")
	ErrSpawnBlocked = errors.New("spawn point blocked")
)

// Registry owns the vehicle collection. It is not safe for concurrent use;
// the simulation serialises access.
type Registry struct {
	vehicles []*Vehicle
	newID    func() string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{newID: uuid.NewString}
}

// Spawn places a stationary vehicle at the spawn point of l. It fails
// without side effects when another vehicle is within SpawnClearance of that
// point.
func (r *Registry) Spawn(l lane.ID) (Vehicle, error) {
	if !l.Valid() {
		return Vehicle{}, ErrInvalidLane
	}
	spawn := lane.Get(l).Spawn
	for _, v := range r.vehicles {
		if v.Position.Sub(spawn).Length() < SpawnClearance {
			return Vehicle{}, ErrSpawnBlocked
		}
	}

	v := &Vehicle{ID: r.newID(), Lane: l, Position: spawn}
	r.vehicles = append(r.vehicles, v)
	return *v, nil
}

// Tick moves every vehicle one step in insertion order and then drops the
// ones that left the boundary, returning them.
func (r *Registry) Tick(green lane.ID, dt float64) []Vehicle {
	for _, v := range r.vehicles {
		Step(v, green, r.vehicles, dt)
	}

	var removed []Vehicle
	kept := r.vehicles[:0]
	for _, v := range r.vehicles {
		if v.OutOfBounds() {
			removed = append(removed, *v)
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(r.vehicles); i++ {
		r.vehicles[i] = nil
	}
	r.vehicles = kept
	return removed
}

// Occupancy reports, per lane, whether some vehicle is in the sensing zone.
func (r *Registry) Occupancy() [lane.Count]bool {
	var waiting [lane.Count]bool
	for _, v := range r.vehicles {
		if v.Sensed() {
			waiting[v.Lane] = true
		}
	}
	return waiting
}

// Vehicles returns a copy of every live vehicle in insertion order.
func (r *Registry) Vehicles() []Vehicle {
	out := make([]Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, *v)
	}
	return out
}

// Len returns the number of live vehicles.
func (r *Registry) Len() int {
	return len(r.vehicles)
}
