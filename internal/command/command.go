// Package command parses external override commands and buffers them for
// the tick loop.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/lane"
)

var ErrInvalidCommand = errors.New("invalid override command")

// MaxDurationMs is the longest override a time.Duration can represent.
const MaxDurationMs = math.MaxInt64 / int64(time.Millisecond)

// OverrideCommand is the inbound wire format. Older publishers send the
// duration as "duration" or "time"; all three are milliseconds.
type OverrideCommand struct {
	Lane       *int   `json:"lane"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
	Duration   *int64 `json:"duration,omitempty"`
	Time       *int64 `json:"time,omitempty"`
}

// Millis returns the first duration field that is set.
func (c OverrideCommand) Millis() (int64, bool) {
	for _, d := range []*int64{c.DurationMs, c.Duration, c.Time} {
		if d != nil {
			return *d, true
		}
	}
	return 0, false
}

// Validate converts the command into a controller override.
func (c OverrideCommand) Validate() (controller.Override, error) {
	if c.Lane == nil {
		return controller.Override{}, fmt.Errorf("%w: lane is required", ErrInvalidCommand)
	}
	l := lane.ID(*c.Lane)
	if !l.Valid() {
		return controller.Override{}, fmt.Errorf("%w: lane %d out of range", ErrInvalidCommand, *c.Lane)
	}
	ms, ok := c.Millis()
	if !ok {
		return controller.Override{}, fmt.Errorf("%w: duration is required", ErrInvalidCommand)
	}
	if ms <= 0 {
		return controller.Override{}, fmt.Errorf("%w: duration %dms must be positive", ErrInvalidCommand, ms)
	}
	if ms > MaxDurationMs {
		return controller.Override{}, fmt.Errorf("%w: duration %dms too long", ErrInvalidCommand, ms)
	}
	return controller.Override{Lane: l, Duration: time.Duration(ms) * time.Millisecond}, nil
}

// ParseOverride decodes and validates a JSON override payload.
func ParseOverride(payload []byte) (controller.Override, error) {
	var cmd OverrideCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return controller.Override{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return cmd.Validate()
}

// Mailbox holds at most one pending override. A newer command replaces an
// older one that has not been taken yet.
type Mailbox struct {
	mu      sync.Mutex
	pending *controller.Override
}

// Put stores o, replacing any pending override.
func (m *Mailbox) Put(o controller.Override) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &o
}

// Take removes and returns the pending override, or nil.
func (m *Mailbox) Take() *controller.Override {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.pending
	m.pending = nil
	return o
}
