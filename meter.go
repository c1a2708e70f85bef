package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"
)

// MQTT topics for the measurement bridge and the slaved machine.
// The sampling hardware publishes plain float payloads to the rail topics;
// the relay topic switches the slaved machine's physical power feed.
const (
	TopicSupplyVoltage = "sunburn/meter/supply_voltage"
	TopicSupplyCurrent = "sunburn/meter/supply_current"
	TopicSupplyPower   = "sunburn/meter/supply_power"
	TopicUsageVoltage  = "sunburn/meter/usage_voltage"
	TopicUsageCurrent  = "sunburn/meter/usage_current"
	TopicUsagePower    = "sunburn/meter/usage_power"
	TopicRelaySet      = "sunburn/meter/relay/set"

	TopicClientCommand = "sunburn/client/command"
	TopicClientStatus  = "sunburn/client/status"
)

// meterTopics returns the rail subscription list.
func meterTopics() []string {
	return []string{
		TopicSupplyVoltage, TopicSupplyCurrent, TopicSupplyPower,
		TopicUsageVoltage, TopicUsageCurrent, TopicUsagePower,
	}
}

// SensorMessage is one rail reading forwarded from the MQTT worker.
type SensorMessage struct {
	Topic string
	Value string
}

// PowerSample is a single measurement snapshot, immutable once taken.
type PowerSample struct {
	UsageVoltage  float64
	UsageCurrent  float64
	UsagePower    float64
	SupplyVoltage float64
	SupplyCurrent float64
	SupplyPower   float64
}

// Meter is the measurement collaborator: sample acquisition plus physical
// power control of the slaved machine. Errors from a Meter are fatal to the
// control loop; running blind on power is unsafe for the panel and the
// machine both.
type Meter interface {
	Init(ctx context.Context) error
	PowerOn() error
	PowerOff() error
	Measure() error
	Measurements() PowerSample
}

// mqttMeter builds samples from rail readings pushed by the measurement
// bridge. All methods run on the tick loop goroutine; the MQTT worker only
// touches the channel.
type mqttMeter struct {
	msgChan    <-chan SensorMessage
	sender     *MQTTSender
	staleAfter time.Duration

	sample     PowerSample
	lastUpdate time.Time
	seen       map[string]bool
}

// newMQTTMeter wires a meter to the worker channel and the publish side.
func newMQTTMeter(msgChan <-chan SensorMessage, sender *MQTTSender, staleAfter time.Duration) *mqttMeter {
	return &mqttMeter{
		msgChan:    msgChan,
		sender:     sender,
		staleAfter: staleAfter,
		seen:       make(map[string]bool),
	}
}

// Init blocks until every rail topic has reported at least once, so the
// first tick never regulates against half a sample. A bridge that stays
// silent past the deadline is a deployment fault.
func (m *mqttMeter) Init(ctx context.Context) error {
	deadline := time.NewTimer(time.Minute)
	defer deadline.Stop()

	want := meterTopics()
	for len(m.seen) < len(want) {
		select {
		case msg := <-m.msgChan:
			m.apply(msg)
		case <-deadline.C:
			return fmt.Errorf("meter: no full sample within deadline, got %d/%d rails", len(m.seen), len(want))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Printf("Meter ready: all %d rails reporting\n", len(want))
	return nil
}

// PowerOn switches the slaved machine's power relay on. Idempotent.
func (m *mqttMeter) PowerOn() error {
	m.sender.SetRelay(true)
	return nil
}

// PowerOff switches the relay off. Idempotent.
func (m *mqttMeter) PowerOff() error {
	m.sender.SetRelay(false)
	return nil
}

// Measure folds all pending rail readings into the current sample. A bridge
// that has gone quiet for longer than staleAfter is treated as a hardware
// fault, not a soft miss.
func (m *mqttMeter) Measure() error {
	for {
		select {
		case msg := <-m.msgChan:
			m.apply(msg)
		default:
			if time.Since(m.lastUpdate) > m.staleAfter {
				return fmt.Errorf("meter: readings stale for %s", time.Since(m.lastUpdate).Round(time.Second))
			}
			return nil
		}
	}
}

// Measurements returns the latest snapshot.
func (m *mqttMeter) Measurements() PowerSample {
	return m.sample
}

func (m *mqttMeter) apply(msg SensorMessage) {
	value, err := strconv.ParseFloat(msg.Value, 64)
	if err != nil {
		log.Printf("Meter: non-numeric payload on %s: %q\n", msg.Topic, msg.Value)
		return
	}

	switch msg.Topic {
	case TopicSupplyVoltage:
		m.sample.SupplyVoltage = value
	case TopicSupplyCurrent:
		m.sample.SupplyCurrent = value
	case TopicSupplyPower:
		m.sample.SupplyPower = value
	case TopicUsageVoltage:
		m.sample.UsageVoltage = value
	case TopicUsageCurrent:
		m.sample.UsageCurrent = value
	case TopicUsagePower:
		m.sample.UsagePower = value
	default:
		return
	}
	m.seen[msg.Topic] = true
	m.lastUpdate = time.Now()
}

// Link is the network collaborator reaching the slaved machine.
type Link interface {
	// WaitMsg returns the most recent inbound message, if any arrived
	// since the last call. Never blocks.
	WaitMsg() (string, bool)
	SendMsg(msg string)
}

// mqttLink carries the colon-delimited protocol over the client topics.
type mqttLink struct {
	inbound <-chan string
	sender  *MQTTSender
}

func newMQTTLink(inbound <-chan string, sender *MQTTSender) *mqttLink {
	return &mqttLink{inbound: inbound, sender: sender}
}

// WaitMsg drains the inbound channel and keeps the newest message, matching
// the one-poll-per-tick contract.
func (l *mqttLink) WaitMsg() (string, bool) {
	var msg string
	var ok bool
	for {
		select {
		case m := <-l.inbound:
			msg, ok = m, true
		default:
			return msg, ok
		}
	}
}

func (l *mqttLink) SendMsg(msg string) {
	l.sender.SendCommand(msg)
}
