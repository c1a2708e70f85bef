package main

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return nil }

// fakeMQTTClient records published messages; everything else is a stub.
type fakeMQTTClient struct {
	mu        sync.Mutex
	published []MQTTMessage
}

func (c *fakeMQTTClient) IsConnected() bool      { return true }
func (c *fakeMQTTClient) IsConnectionOpen() bool { return true }
func (c *fakeMQTTClient) Connect() mqtt.Token    { return &fakeToken{} }
func (c *fakeMQTTClient) Disconnect(quiesce uint) {}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, MQTTMessage{
		Topic:   topic,
		Payload: payload.([]byte),
		QoS:     qos,
		Retain:  retained,
	})
	return &fakeToken{}
}

func (c *fakeMQTTClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeMQTTClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeMQTTClient) Unsubscribe(...string) mqtt.Token { return &fakeToken{} }
func (c *fakeMQTTClient) AddRoute(string, mqtt.MessageHandler) {}
func (c *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (c *fakeMQTTClient) payloads(topic string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, msg := range c.published {
		if msg.Topic == topic {
			out = append(out, string(msg.Payload))
		}
	}
	return out
}

func TestSenderDeliversFinalCommandsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	outgoing := make(chan MQTTMessage, 8)
	clients := make(chan mqtt.Client, 1)
	drained := make(chan struct{})

	client := &fakeMQTTClient{}
	clients <- client

	go mqttSenderWorker(ctx, outgoing, clients, drained)

	// Cancellation first, final commands after: the worker must still
	// publish everything enqueued before the channel closes.
	cancel()
	sender := NewMQTTSender(outgoing)
	sender.SendCommand(msgShutdown)
	sender.SetRelay(false)
	close(outgoing)

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("sender never drained")
	}

	assert.Equal(t, []string{msgShutdown}, client.payloads(TopicClientCommand))
	assert.Equal(t, []string{"off"}, client.payloads(TopicRelaySet))
}

func TestSenderQueuesUntilConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	outgoing := make(chan MQTTMessage, 8)
	clients := make(chan mqtt.Client, 1)
	drained := make(chan struct{})

	go mqttSenderWorker(ctx, outgoing, clients, drained)

	sender := NewMQTTSender(outgoing)
	sender.SendCommand("control:1:7")
	sender.SendCommand("status:")

	// Nothing is lost while no broker connection exists; the client
	// arriving flushes the queue in order.
	client := &fakeMQTTClient{}
	clients <- client

	require.Eventually(t, func() bool {
		return len(client.payloads(TopicClientCommand)) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"control:1:7", "status:"}, client.payloads(TopicClientCommand))
}
