package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ukydev/intersection-twin/internal/controller"
)

type recordingSink struct {
	mu     sync.Mutex
	events []controller.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev controller.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Message())
	}
	return out
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "traffic/INT_WEB/logs", Topic("INT_WEB"))
}

func TestDispatcher_DeliversInOrderToEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(8, a, b, LogSink{UnitID: "INT_TEST"})

	assert.True(t, d.Emit(controller.Event{Kind: controller.EventOnline}))
	assert.True(t, d.Emit(controller.Event{Kind: controller.EventPrioritySwitch, Lane: 2}))
	assert.True(t, d.Emit(controller.Event{Kind: controller.EventGreen, Lane: 2}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	want := []string{"ONLINE", "Priority Switch -> Lane 2", "Green: Lane 2"}
	assert.Eventually(t, func() bool { return len(a.messages()) == len(want) }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, want, a.messages())
	assert.Equal(t, want, b.messages(), "a failing sink still sees every event")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(2)
	assert.True(t, d.Emit(controller.Event{Kind: controller.EventOnline}))
	assert.True(t, d.Emit(controller.Event{Kind: controller.EventOnline}))
	assert.False(t, d.Emit(controller.Event{Kind: controller.EventOnline}))
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestDispatcher_FlushesOnShutdown(t *testing.T) {
	s := &recordingSink{}
	d := NewDispatcher(4, s)
	d.Emit(controller.Event{Kind: controller.EventOverrideEnded})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, []string{"Override Ended"}, s.messages())
}

func TestDispatcher_AddSink(t *testing.T) {
	early := &recordingSink{}
	late := &recordingSink{}
	d := NewDispatcher(4, early)
	d.AddSink(late)
	d.Emit(controller.Event{Kind: controller.EventGreen, Lane: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, []string{"Green: Lane 1"}, early.messages())
	assert.Equal(t, []string{"Green: Lane 1"}, late.messages())
}
