package main

import (
	"context"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps a channel for sending MQTT messages with helper methods
type MQTTSender struct {
	ch chan<- MQTTMessage
}

// NewMQTTSender creates a new MQTTSender wrapping the given channel
func NewMQTTSender(ch chan<- MQTTMessage) *MQTTSender {
	return &MQTTSender{ch: ch}
}

// Send sends a raw MQTTMessage
func (s *MQTTSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

// SendCommand publishes one protocol string to the slaved machine's command
// topic. Payloads are the raw colon-delimited wire format so the client sees
// them bit-exact.
func (s *MQTTSender) SendCommand(payload string) {
	s.ch <- MQTTMessage{
		Topic:   TopicClientCommand,
		Payload: []byte(payload),
		QoS:     1,
		Retain:  false,
	}
}

// SetRelay switches the slaved machine's power relay. The relay controller
// treats repeated states as no-ops, so sending the same state twice is safe.
func (s *MQTTSender) SetRelay(on bool) {
	payload := "off"
	if on {
		payload = "on"
	}
	s.ch <- MQTTMessage{
		Topic:   TopicRelaySet,
		Payload: []byte(payload),
		QoS:     1,
		Retain:  false,
	}
}

// mqttSenderWorker handles outgoing MQTT messages, queuing anything produced
// before the broker connection is up. Cancellation does not stop it: the
// worker keeps delivering until the outgoing channel is closed, so the final
// shutdown and relay-off commands are published before the process exits.
// The drained channel closes once everything deliverable has gone out.
func mqttSenderWorker(
	ctx context.Context,
	outgoingChan <-chan MQTTMessage,
	clientChan <-chan mqtt.Client,
	drained chan<- struct{},
) {
	log.Println("MQTT sender worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	done := ctx.Done()
	for {
		select {
		case <-done:
			// Final commands may still be on their way; the worker
			// exits when the producer closes the outgoing channel.
			done = nil

		case newClient := <-clientChan:
			log.Println("MQTT sender worker received new client")
			client = newClient

			// Process any queued messages now that we have a client
			if client != nil && client.IsConnected() && len(messageQueue) > 0 {
				publishAll(client, messageQueue)
				log.Printf("MQTT sender worker processed %d queued messages\n", len(messageQueue))
				messageQueue = nil
			}

		case msg, ok := <-outgoingChan:
			if !ok {
				if len(messageQueue) > 0 {
					// A connection may have come up since the
					// last client receive.
					select {
					case client = <-clientChan:
					default:
					}
					if client != nil && client.IsConnected() {
						publishAll(client, messageQueue)
					} else {
						log.Printf("MQTT sender worker dropping %d undeliverable messages\n", len(messageQueue))
					}
					messageQueue = nil
				}
				log.Println("MQTT sender worker stopped")
				close(drained)
				return
			}
			if client != nil && client.IsConnected() {
				publishAll(client, []MQTTMessage{msg})
			} else {
				// No client yet, queue the message
				messageQueue = append(messageQueue, msg)
				log.Printf("MQTT sender worker queued message (total queued: %d)\n", len(messageQueue))
			}
		}
	}
}

func publishAll(client mqtt.Client, msgs []MQTTMessage) {
	for _, msg := range msgs {
		token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v\n", msg.Topic, token.Error())
		}
	}
}
