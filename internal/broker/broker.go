// Package broker connects an intersection to an MQTT broker: it listens for
// override commands on traffic/{unit}/control and publishes controller
// events to traffic/{unit}/logs.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/controller"
	"github.com/ukydev/intersection-twin/internal/telemetry"
)

const (
	QoS            = 1
	retryInterval  = 3 * time.Second
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

// ControlTopic returns the command topic of a unit.
func ControlTopic(unitID string) string {
	return fmt.Sprintf("traffic/%s/control", unitID)
}

// UnitFromTopic extracts the unit id from a traffic/{unit}/... topic.
func UnitFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "traffic" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// NewClientOptions returns options with automatic reconnect enabled.
func NewClientOptions(brokerURL, clientID string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost, reconnecting")
		})
}

// CommandHandler consumes raw override payloads.
type CommandHandler interface {
	HandleCommand(payload []byte) error
}

// mqttClient is the part of mqtt.Client the bridge uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Bridge links one intersection to the broker.
type Bridge struct {
	client  mqttClient
	unitID  string
	handler CommandHandler
}

// Connect dials the broker. The subscription is (re)established on every
// connect, after which onConnect is called. If the broker is not reachable
// within the connect timeout the client keeps retrying in the background.
func Connect(brokerURL, clientID, unitID string, handler CommandHandler, onConnect func()) (*Bridge, error) {
	b := &Bridge{unitID: unitID, handler: handler}

	opts := NewClientOptions(brokerURL, clientID)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.WithFields(log.Fields{"broker": brokerURL, "unit_id": unitID}).Info("Connected to MQTT broker")
		if err := b.subscribe(); err != nil {
			log.WithError(err).Error("Failed to subscribe to control topic")
		}
		if onConnect != nil {
			onConnect()
		}
	})

	c := mqtt.NewClient(opts)
	b.client = c
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		log.WithField("broker", brokerURL).Warn("MQTT broker not reachable yet, retrying in background")
		return b, nil
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func (b *Bridge) subscribe() error {
	topic := ControlTopic(b.unitID)
	tok := b.client.Subscribe(topic, QoS, b.handleControl)
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	return tok.Error()
}

func (b *Bridge) handleControl(_ mqtt.Client, msg mqtt.Message) {
	log.WithFields(log.Fields{"topic": msg.Topic(), "payload": string(msg.Payload())}).Debug("Received control message")
	// Rejections are logged by the handler; the message is consumed either way.
	_ = b.handler.HandleCommand(msg.Payload())
}

// Publish sends the event text to the unit's log topic.
func (b *Bridge) Publish(ctx context.Context, ev controller.Event) error {
	tok := b.client.Publish(telemetry.Topic(b.unitID), QoS, false, ev.Message())
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", ev.Kind, ctx.Err())
	}
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(quiesceMillis)
}
