// Package sim drives the intersection: one fixed-step tick evaluates the
// controller and then moves every vehicle.
//
// All controller and registry mutations happen under a single lock, so a
// spawn request or snapshot from another goroutine never observes a
// half-applied tick. Overrides arrive through a single-slot mailbox and are
// applied at the start of the next tick.
package sim

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/command"
	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/lane"
	"github.com/ukydev/intersection-twin/internal/models"
	"github.com/ukydev/intersection-twin/internal/timeutil"
	"github.com/ukydev/intersection-twin/internal/vehicle"
)

const (
	DefaultInterval = 16 * time.Millisecond
	DefaultDT       = 0.016
)

// Emitter accepts events without blocking.
type Emitter interface {
	Emit(ev controller.Event) bool
}

// Config holds the tick parameters.
type Config struct {
	UnitID string
	// Interval is the wall-clock period between ticks.
	Interval time.Duration
	// DT is the simulated seconds applied to vehicle motion on every tick.
	DT float64
}

// Simulation owns the controller, the vehicle registry and the override
// mailbox of one intersection.
type Simulation struct {
	cfg     Config
	clock   timeutil.Clock
	emitter Emitter

	mu    sync.Mutex
	ctrl  *controller.Controller
	reg   *vehicle.Registry
	ticks uint64
	last  time.Time

	mailbox command.Mailbox
}

// New creates a simulation whose controller starts at clock.Now(). A nil
// emitter discards events.
func New(cfg Config, clock timeutil.Clock, emitter Emitter) *Simulation {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DT <= 0 {
		cfg.DT = DefaultDT
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &Simulation{
		cfg:     cfg,
		clock:   clock,
		emitter: emitter,
		ctrl:    controller.New(now),
		reg:     vehicle.NewRegistry(),
		last:    now,
	}
}

// UnitID returns the intersection identifier.
func (s *Simulation) UnitID() string {
	return s.cfg.UnitID
}

// Step runs one tick at now and returns the controller events it produced.
func (s *Simulation) Step(now time.Time) []controller.Event {
	s.mu.Lock()
	pending := s.mailbox.Take()
	events := s.ctrl.Evaluate(now, s.reg.Occupancy(), pending)
	removed := s.reg.Tick(s.ctrl.GreenLane(), s.cfg.DT)
	s.ticks++
	s.last = now
	s.mu.Unlock()

	for _, v := range removed {
		log.WithFields(log.Fields{"vehicle_id": v.ID, "lane": v.Lane}).Debug("Vehicle left the intersection")
	}
	s.emit(events...)
	return events
}

// Run ticks every Interval until ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.WithFields(log.Fields{
		"unit_id":  s.cfg.UnitID,
		"interval": s.cfg.Interval,
		"dt":       s.cfg.DT,
	}).Info("Simulation started")

	for {
		select {
		case <-ctx.Done():
			log.WithField("ticks", s.Ticks()).Info("Simulation stopped")
			return
		case <-ticker.C():
			s.Step(s.clock.Now())
		}
	}
}

// Announce emits the online marker.
func (s *Simulation) Announce() {
	s.emit(controller.Event{Kind: controller.EventOnline, Lane: lane.None, From: lane.None, At: s.clock.Now()})
}

// Spawn adds a vehicle to lane l.
func (s *Simulation) Spawn(l lane.ID) (vehicle.Vehicle, error) {
	s.mu.Lock()
	v, err := s.reg.Spawn(l)
	s.mu.Unlock()

	fields := log.Fields{"unit_id": s.cfg.UnitID, "lane": int(l)}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Spawn rejected")
		return vehicle.Vehicle{}, err
	}
	fields["vehicle_id"] = v.ID
	log.WithFields(fields).Info("Spawned vehicle")
	return v, nil
}

// SubmitOverride queues o for the next tick, replacing any queued override.
func (s *Simulation) SubmitOverride(o controller.Override) {
	s.mailbox.Put(o)
	log.WithFields(log.Fields{
		"unit_id":  s.cfg.UnitID,
		"lane":     int(o.Lane),
		"duration": o.Duration,
	}).Info("Override queued")
}

// HandleCommand parses a raw override payload and queues it. Invalid
// commands are logged and leave the simulation untouched.
func (s *Simulation) HandleCommand(payload []byte) error {
	o, err := command.ParseOverride(payload)
	if err != nil {
		log.WithError(err).WithField("payload", string(payload)).Warn("Rejected override command")
		return err
	}
	s.SubmitOverride(o)
	return nil
}

// State returns a copy of the controller state.
func (s *Simulation) State() controller.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

// Ticks returns how many ticks have run.
func (s *Simulation) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// VehicleCount returns how many vehicles are on the road.
func (s *Simulation) VehicleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Len()
}

// Snapshot returns what a renderer needs to draw the current frame.
func (s *Simulation) Snapshot() models.IntersectionView {
	s.mu.Lock()
	state := s.ctrl.State()
	vehicles := s.reg.Vehicles()
	at := s.last
	s.mu.Unlock()

	view := models.IntersectionView{
		UnitID:    s.cfg.UnitID,
		Phase:     string(state.Phase),
		GreenLane: models.LaneRef(state.GreenLane),
		Vehicles:  make([]models.VehicleView, 0, len(vehicles)),
		Timestamp: at,
	}
	for _, v := range vehicles {
		view.Vehicles = append(view.Vehicles, models.VehicleView{
			ID:       v.ID,
			Lane:     int(v.Lane),
			Position: v.Position,
			Facing:   v.Facing(),
			Speed:    v.Speed,
			Waiting:  v.Waiting,
		})
	}
	return view
}

func (s *Simulation) emit(events ...controller.Event) {
	if s.emitter == nil {
		return
	}
	for _, ev := range events {
		s.emitter.Emit(ev)
	}
}
