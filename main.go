package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// SafeGo launches a worker goroutine with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if the worker ran for 2+ minutes before failing.
// After exhausting retries, cancels context to trigger shutdown.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// A normal return means context cancellation or clean
			// completion; either way the goroutine is done.
			if panicValue == nil {
				return
			}

			// If ran for resetAfter duration before panicking, reset retry state
			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}

type options struct {
	broker       string
	clientID     string
	tickInterval time.Duration
	minPower     float64
	calibPath    string
	verbose      bool
}

func main() {
	var o options

	root := &cobra.Command{
		Use:   "sunburn",
		Short: "Solar power tracking controller for a slaved computer",
		Long: `sunburn matches a computer's power draw to the live output of a solar
panel. It reads supply and usage rails from an MQTT measurement bridge,
runs a PID regulated core/CPU-limit gearbox, switches the machine's power
relay with hysteresis, and commands the client over MQTT.

MQTT credentials are read from MQTT_USERNAME and MQTT_PASSWORD
(a .env file in the working directory is loaded if present).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o)
		},
	}

	root.Flags().StringVarP(&o.broker, "broker", "b", "tcp://localhost:1883", "MQTT broker URL")
	root.Flags().StringVar(&o.clientID, "client-id", "sunburn-controller", "MQTT client ID")
	root.Flags().DurationVarP(&o.tickInterval, "interval", "i", time.Second, "control loop tick interval")
	root.Flags().Float64Var(&o.minPower, "min-power", 18, "minimum viable supply power in watts")
	root.Flags().StringVarP(&o.calibPath, "calibration", "c", "", "machine calibration YAML file (built-in table if empty)")
	root.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log every adjustment and the running power budget")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(o options) error {
	log.Println("Starting sunburn...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	mqttUsername := os.Getenv("MQTT_USERNAME")
	mqttPassword := os.Getenv("MQTT_PASSWORD")
	if mqttUsername == "" || mqttPassword == "" {
		log.Fatal("MQTT_USERNAME and MQTT_PASSWORD must be set in .env file")
	}

	calib, err := loadCalibration(o.calibPath)
	if err != nil {
		return err
	}

	cfg := DefaultControllerConfig()
	cfg.TickInterval = o.tickInterval
	cfg.MinPower = o.minPower
	cfg.Calibration = calib
	cfg.Verbose = o.verbose

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meterChan := make(chan SensorMessage, 64)
	statusChan := make(chan string, 16)
	outgoingChan := make(chan MQTTMessage, 100)
	clientChan := make(chan mqtt.Client, 1)
	events := make(chan consoleEvent, 10)
	drained := make(chan struct{})

	SafeGo(ctx, cancel, "MQTT sender", func(ctx context.Context) {
		mqttSenderWorker(ctx, outgoingChan, clientChan, drained)
	})
	SafeGo(ctx, cancel, "MQTT worker", func(ctx context.Context) {
		mqttWorker(ctx, o.broker, o.clientID, mqttUsername, mqttPassword,
			meterChan, statusChan, clientChan, drained)
	})
	SafeGo(ctx, cancel, "Console", func(ctx context.Context) {
		consoleWorker(ctx, cancel, events)
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	sender := NewMQTTSender(outgoingChan)
	meter := newMQTTMeter(meterChan, sender, 3*cfg.TickInterval+time.Second)
	link := newMQTTLink(statusChan, sender)

	controller := NewController(cfg, meter, link, events)
	err = controller.Run(ctx)

	// The controller has enqueued its final shutdown and relay-off
	// commands; closing the channel tells the sender to flush and stop.
	// Wait for delivery before letting the process exit.
	close(outgoingChan)
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		log.Println("Timed out waiting for final commands to be delivered")
	}
	return err
}
