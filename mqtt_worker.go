package main

import (
	"context"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttWorker manages the broker connection, forwarding rail readings to the
// meter channel and client status payloads to the link channel
func mqttWorker(
	ctx context.Context,
	broker string,
	clientID string,
	username, password string,
	meterChan chan<- SensorMessage,
	statusChan chan<- string,
	clientChan chan<- mqtt.Client,
	drained <-chan struct{},
) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v\n", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s\n", broker)

		// Send the new client to the sender worker
		select {
		case clientChan <- client:
			log.Println("Sent new MQTT client to sender worker")
		case <-ctx.Done():
			return
		}

		// Subscribe to the measurement rails
		for _, topic := range meterTopics() {
			token := client.Subscribe(topic, 0, func(client mqtt.Client, msg mqtt.Message) {
				value := string(msg.Payload())

				// Skip dropout markers from the bridge; staleness
				// detection in the meter handles prolonged silence
				if value == "Undefined" || value == "unavailable" {
					return
				}

				select {
				case meterChan <- SensorMessage{Topic: msg.Topic(), Value: value}:
				case <-ctx.Done():
				}
			})

			if token.Wait() && token.Error() != nil {
				log.Printf("Failed to subscribe to topic %s: %v\n", topic, token.Error())
			} else {
				log.Printf("Subscribed to topic: %s\n", topic)
			}
		}

		// Subscribe to the slaved machine's status reports
		token := client.Subscribe(TopicClientStatus, 0, func(client mqtt.Client, msg mqtt.Message) {
			select {
			case statusChan <- string(msg.Payload()):
			default:
				// Tick loop keeps only the newest report anyway
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("Failed to subscribe to topic %s: %v\n", TopicClientStatus, token.Error())
		} else {
			log.Printf("Subscribed to topic: %s\n", TopicClientStatus)
		}
	})

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...\n", broker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Failed to connect to MQTT broker: %v\n", token.Error())
		return
	}

	// Keep worker alive until context is done
	<-ctx.Done()

	// Let the sender deliver the final shutdown commands before the
	// connection drops.
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		log.Println("Gave up waiting for outgoing messages before disconnect")
	}

	if client.IsConnected() {
		client.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}
