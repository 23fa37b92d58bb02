package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/command"
	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/lane"
	"github.com/ukydev/intersection-twin/internal/middleware"
	"github.com/ukydev/intersection-twin/internal/models"
	"github.com/ukydev/intersection-twin/internal/vehicle"
)

// IntersectionService is the part of the simulation the HTTP API drives.
type IntersectionService interface {
	UnitID() string
	Ticks() uint64
	VehicleCount() int
	Snapshot() models.IntersectionView
	Spawn(l lane.ID) (vehicle.Vehicle, error)
	SubmitOverride(o controller.Override)
}

// IntersectionHandler serves the intersection state and accepts spawn and
// override requests.
type IntersectionHandler struct {
	Sim IntersectionService
}

// OverrideAccepted is the response body of an accepted override.
type OverrideAccepted struct {
	Lane       int    `json:"lane"`
	DurationMs int64  `json:"duration_ms"`
	QueuedBy   string `json:"queued_by,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// GetIntersection returns the current render snapshot.
func (h *IntersectionHandler) GetIntersection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.Sim.Snapshot())
}

// SpawnVehicle adds a vehicle to the lane named in the path.
func (h *IntersectionHandler) SpawnVehicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := strconv.Atoi(r.PathValue("lane"))
	if err != nil {
		http.Error(w, "Invalid lane", http.StatusBadRequest)
		return
	}

	v, err := h.Sim.Spawn(lane.ID(n))
	switch {
	case errors.Is(err, vehicle.ErrInvalidLane):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, vehicle.ErrSpawnBlocked):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, "Failed to spawn vehicle", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusCreated, v)
	}
}

// Override queues a manual override. The body uses the same JSON as the
// MQTT control topic.
func (h *IntersectionHandler) Override(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	o, err := command.ParseOverride(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Sim.SubmitOverride(o)

	resp := OverrideAccepted{Lane: int(o.Lane), DurationMs: o.Duration.Milliseconds()}
	if claims, ok := middleware.GetOperatorFromContext(r.Context()); ok {
		resp.QueuedBy = claims.Username
		log.WithFields(log.Fields{
			"unit_id":  h.Sim.UnitID(),
			"operator": claims.Username,
			"lane":     resp.Lane,
		}).Info("Override requested over HTTP")
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// Health reports liveness, how far the tick loop has run and how many
// vehicles are live.
func (h *IntersectionHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"unit_id":  h.Sim.UnitID(),
		"ticks":    h.Sim.Ticks(),
		"vehicles": h.Sim.VehicleCount(),
	})
}
