package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/intersection-twin/internal/command"
	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/models"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (t doneToken) Error() error { return t.err }

// MockPublisher is a mock implementation of publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func TestParseOverride(t *testing.T) {
	req, err := parseOverride([]string{"INT_8A2F", "2", "10"})
	require.NoError(t, err)
	assert.Equal(t, overrideRequest{Unit: "INT_8A2F", Lane: 2, Seconds: 10}, req)

	for _, args := range [][]string{
		{"INT_8A2F", "2"},
		{"INT_8A2F", "4", "10"},
		{"INT_8A2F", "-1", "10"},
		{"INT_8A2F", "x", "10"},
		{"INT_8A2F", "1", "0"},
		{"INT_8A2F", "1", "ten"},
	} {
		_, err := parseOverride(args)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestOverridePayloadIsAcceptedByUnits(t *testing.T) {
	data, err := overrideRequest{Unit: "INT_WEB", Lane: 3, Seconds: 10}.payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"lane":3,"duration":10000}`, string(data))

	o, err := command.ParseOverride(data)
	require.NoError(t, err)
	assert.Equal(t, controller.Override{Lane: 3, Duration: 10 * time.Second}, o)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "ONLINE", classify(models.TelemetryMessage{Message: "ONLINE"}))
	assert.Equal(t, "OVERRIDE", classify(models.TelemetryMessage{Message: "Override Active: Lane 1"}))
	assert.Equal(t, "OVERRIDE", classify(models.TelemetryMessage{Message: "Override Ended"}))
	assert.Equal(t, "", classify(models.TelemetryMessage{Message: "Green: Lane 0"}))
}

func TestPanel_DiscoversUnitsFromLogs(t *testing.T) {
	var out bytes.Buffer
	p := newPanel(&MockPublisher{}, &out)

	p.onLog("traffic/INT_B/logs", []byte("ONLINE"))
	p.onLog("traffic/INT_A/logs", []byte("Green: Lane 1"))
	p.onLog("traffic/INT_B/logs", []byte("Override Active: Lane 2"))
	p.onLog("garbage", []byte("ignored"))

	assert.Equal(t, []string{"INT_A", "INT_B"}, p.Units())
	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "+ discovered INT_B"))
	assert.Contains(t, text, "[ONLINE] INT_B: ONLINE")
	assert.Contains(t, text, "INT_A: Green: Lane 1")
	assert.Contains(t, text, "[OVERRIDE] INT_B: Override Active: Lane 2")
	assert.NotContains(t, text, "ignored")
}

func TestPanel_ExecuteOverride(t *testing.T) {
	var out bytes.Buffer
	client := &MockPublisher{}
	client.On("Publish", "traffic/INT_A/control", byte(1), false, mock.MatchedBy(func(b []byte) bool {
		return string(b) == `{"lane":1,"duration":5000}`
	})).Return(doneToken{}).Once()
	p := newPanel(client, &out)

	require.NoError(t, p.execute("override INT_A 1 5"))
	assert.Contains(t, out.String(), "Sent Override: INT_A Lane 1 for 5000ms")
	client.AssertExpectations(t)

	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(doneToken{err: errors.New("not connected")})
	assert.EqualError(t, p.execute("override INT_A 1 5"), "not connected")
}

func TestPanel_Repl(t *testing.T) {
	var out bytes.Buffer
	p := newPanel(&MockPublisher{}, &out)
	p.onLog("traffic/INT_Z/logs", []byte("ONLINE"))

	p.repl(strings.NewReader("\nlist\nhelp\nbogus\noverride INT_Z 9 1\nquit\nlist\n"))

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "\nINT_Z\n"), "list after quit must not run")
	assert.Contains(t, text, "override <UNIT> <LANE> <SECONDS>")
	assert.Contains(t, text, `error: unknown command "bogus"`)
	assert.Contains(t, text, "error: lane must be 0-3")
}

func TestPanel_ListEmpty(t *testing.T) {
	var out bytes.Buffer
	p := newPanel(&MockPublisher{}, &out)
	require.NoError(t, p.execute("LIST"))
	assert.Equal(t, "no intersections discovered yet\n", out.String())
	assert.ErrorIs(t, p.execute("exit"), errQuit)
}
