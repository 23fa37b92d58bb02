package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/broker"
	"github.com/ukydev/intersection-twin/internal/command"
	"github.com/ukydev/intersection-twin/internal/lane"
	"github.com/ukydev/intersection-twin/internal/models"
	"github.com/ukydev/intersection-twin/internal/telemetry"
)

const publishTimeout = 5 * time.Second

var errQuit = errors.New("quit")

const usage = `commands:
  list                              show discovered intersections
  override <UNIT> <LANE> <SECONDS>  force LANE green on UNIT
  help                              show this text
  quit                              exit`

// publisher is the part of mqtt.Client the panel uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// overrideRequest is a parsed override command line.
type overrideRequest struct {
	Unit    string
	Lane    lane.ID
	Seconds int64
}

// parseOverride parses "override <UNIT> <LANE> <SECONDS>" arguments.
func parseOverride(args []string) (overrideRequest, error) {
	if len(args) != 3 {
		return overrideRequest{}, fmt.Errorf("usage: override <UNIT> <LANE> <SECONDS>")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || !lane.ID(n).Valid() {
		return overrideRequest{}, fmt.Errorf("lane must be 0-%d, got %q", lane.Count-1, args[1])
	}
	secs, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || secs <= 0 {
		return overrideRequest{}, fmt.Errorf("seconds must be a positive integer, got %q", args[2])
	}
	return overrideRequest{Unit: args[0], Lane: lane.ID(n), Seconds: secs}, nil
}

// payload encodes the request in the control topic wire format.
func (r overrideRequest) payload() ([]byte, error) {
	l := int(r.Lane)
	ms := r.Seconds * 1000
	return json.Marshal(command.OverrideCommand{Lane: &l, Duration: &ms})
}

// classify tags log lines an operator should notice.
func classify(msg models.TelemetryMessage) string {
	switch {
	case msg.Message == "ONLINE":
		return "ONLINE"
	case strings.Contains(msg.Message, "Override"):
		return "OVERRIDE"
	default:
		return ""
	}
}

// panel tracks discovered intersections and sends overrides.
type panel struct {
	client publisher
	out    io.Writer

	mu    sync.Mutex
	units map[string]time.Time
}

func newPanel(client publisher, out io.Writer) *panel {
	return &panel{client: client, out: out, units: make(map[string]time.Time)}
}

// onLog records the sender of a log line and prints it.
func (p *panel) onLog(topic string, payload []byte) {
	unit, ok := broker.UnitFromTopic(topic)
	if !ok {
		return
	}
	p.mu.Lock()
	_, known := p.units[unit]
	p.units[unit] = time.Now()
	p.mu.Unlock()

	if !known {
		fmt.Fprintf(p.out, "+ discovered %s\n", unit)
	}
	msg := models.TelemetryMessage{Topic: topic, Message: string(payload)}
	if tag := classify(msg); tag != "" {
		fmt.Fprintf(p.out, "[%s] %s: %s\n", tag, unit, msg.Message)
	} else {
		fmt.Fprintf(p.out, "%s: %s\n", unit, msg.Message)
	}
}

// Units returns discovered unit ids in sorted order.
func (p *panel) Units() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.units))
	for u := range p.units {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (p *panel) sendOverride(req overrideRequest) error {
	data, err := req.payload()
	if err != nil {
		return err
	}
	tok := p.client.Publish(broker.ControlTopic(req.Unit), broker.QoS, false, data)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", req.Unit)
	}
	if err := tok.Error(); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Sent Override: %s Lane %d for %dms\n", req.Unit, int(req.Lane), req.Seconds*1000)
	return nil
}

// execute runs one command line.
func (p *panel) execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "list":
		units := p.Units()
		if len(units) == 0 {
			fmt.Fprintln(p.out, "no intersections discovered yet")
		}
		for _, u := range units {
			fmt.Fprintln(p.out, u)
		}
		return nil
	case "override":
		req, err := parseOverride(fields[1:])
		if err != nil {
			return err
		}
		return p.sendOverride(req)
	case "help":
		fmt.Fprintln(p.out, usage)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

// repl reads commands until EOF or quit.
func (p *panel) repl(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := p.execute(scanner.Text())
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			fmt.Fprintf(p.out, "error: %v\n", err)
		}
	}
}

func main() {
	_ = godotenv.Load()

	brokerURL := os.Getenv("MQTT_BROKER")
	if brokerURL == "" {
		brokerURL = "tcp://localhost:1883"
	}
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = "TrafficControlPanel"
	}

	var p *panel
	logTopic := telemetry.Topic("+")
	opts := broker.NewClientOptions(brokerURL, clientID)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.WithField("broker", brokerURL).Info("Connected")
		tok := c.Subscribe(logTopic, broker.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			p.onLog(msg.Topic(), msg.Payload())
		})
		if tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
			log.WithError(tok.Error()).Error("Failed to subscribe to log topics")
		}
	})

	client := mqtt.NewClient(opts)
	p = newPanel(client, os.Stdout)
	if tok := client.Connect(); tok.WaitTimeout(10*time.Second) && tok.Error() != nil {
		log.WithError(tok.Error()).Fatal("Failed to connect to MQTT broker")
	}
	defer client.Disconnect(250)

	fmt.Println(usage)
	p.repl(os.Stdin)
}
