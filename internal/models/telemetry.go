package models

import (
	"time"

	"github.com/ukydev/intersection-twin/internal/lane"
)

// TelemetryMessage is one outbound log line.
type TelemetryMessage struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// EventRecord is the stored form of a controller event.
type EventRecord struct {
	ID        string    `bson:"_id" json:"id"`
	UnitID    string    `bson:"unit_id" json:"unit_id"`
	Kind      string    `bson:"kind" json:"kind"`
	Lane      *int      `bson:"lane,omitempty" json:"lane,omitempty"`
	From      *int      `bson:"from,omitempty" json:"from,omitempty"`
	Message   string    `bson:"message" json:"message"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// VehicleView is what a renderer needs to draw one vehicle.
type VehicleView struct {
	ID       string    `json:"id"`
	Lane     int       `json:"lane"`
	Position lane.Vec2 `json:"position"`
	Facing   float64   `json:"facing"`
	Speed    float64   `json:"speed"`
	Waiting  bool      `json:"waiting"`
}

// IntersectionView is a point-in-time snapshot of the whole intersection.
// GreenLane is nil during the all-red transition.
type IntersectionView struct {
	UnitID    string        `json:"unit_id"`
	Phase     string        `json:"phase"`
	GreenLane *int          `json:"green_lane"`
	Vehicles  []VehicleView `json:"vehicles"`
	Timestamp time.Time     `json:"timestamp"`
}

// SignalGreen reports whether signal head l shows green.
func (v IntersectionView) SignalGreen(l int) bool {
	return v.GreenLane != nil && *v.GreenLane == l
}

// Stream message types.
const (
	StreamSnapshot = "snapshot"
	StreamEvent    = "event"
)

// StreamMessage is one frame on the live websocket feed.
type StreamMessage struct {
	Type     string            `json:"type"`
	Snapshot *IntersectionView `json:"snapshot,omitempty"`
	Event    *EventRecord      `json:"event,omitempty"`
}

// LaneRef converts a lane id into an optional JSON/BSON value.
func LaneRef(id lane.ID) *int {
	if !id.Valid() {
		return nil
	}
	n := int(id)
	return &n
}
