package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Yarb/sunburn/governor"
)

// Mode selects how much of the control pipeline runs each tick.
type Mode int

const (
	// ModeAutomatic runs the full pipeline: averager, PID, gearbox,
	// power state machine.
	ModeAutomatic Mode = iota
	// ModeManualLimit takes limits straight from the operator; the
	// gearbox and power state machine are bypassed and the machine is
	// forced on.
	ModeManualLimit
	// ModeManualPower substitutes an operator-supplied power target for
	// the live supply reading; everything else runs normally. Used to
	// rehearse behavior without real solar input.
	ModeManualPower
)

func (m Mode) String() string {
	switch m {
	case ModeManualLimit:
		return "manual limit"
	case ModeManualPower:
		return "manual power"
	default:
		return "automatic"
	}
}

// ControllerConfig holds the control loop tuning. Defaults reproduce the
// reference deployment.
type ControllerConfig struct {
	TickInterval   time.Duration
	MinPower       float64 // watts; viability threshold for powering the machine
	ShortAvg       int     // short averaging window, 1 effectively disables smoothing
	LongAvg        int     // long averaging window, diagnostics only
	AdjustInterval int     // gearbox cadence in ticks
	OnLimit        int     // sustained ticks above MinPower before power-on
	OffLimit       int     // sustained ticks below MinPower before power-off
	Gains          governor.Gains
	Calibration    governor.Calibration
	Verbose        bool
}

// DefaultControllerConfig returns the reference tuning.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		TickInterval:   time.Second,
		MinPower:       18,
		ShortAvg:       1,
		LongAvg:        6,
		AdjustInterval: 1,
		OnLimit:        2,
		OffLimit:       2,
		Gains:          governor.Gains{Kp: 19, Ki: 0.5, Kd: 1},
		Calibration:    governor.DefaultCalibration(),
	}
}

// Controller owns every piece of control state and mutates it in a fixed
// order once per tick. Nothing here is shared with another goroutine; the
// meter, link and console feed it through polled channels.
type Controller struct {
	cfg    ControllerConfig
	meter  Meter
	link   Link
	events <-chan consoleEvent

	mode         Mode
	limits       governor.Limits
	pid          *governor.PID
	gearbox      *governor.Gearbox
	power        *governor.StateMachine
	supplyShort  *governor.Window
	supplyLong   *governor.Window
	usageShort   *governor.Window
	usageLong    *governor.Window
	manualTarget float64
	cpuUse       float64

	// budget integrates (target - measured) per tick: a rough long-run
	// tracking accuracy figure, never fed back into control.
	budget float64
}

// NewController builds a controller in automatic mode, unpowered.
func NewController(cfg ControllerConfig, meter Meter, link Link, events <-chan consoleEvent) *Controller {
	return &Controller{
		cfg:         cfg,
		meter:       meter,
		link:        link,
		events:      events,
		limits:      governor.Limits{CPU: governor.CPUMin, Cores: 0},
		pid:         &governor.PID{Gains: cfg.Gains},
		gearbox:     governor.NewGearbox(cfg.Calibration, cfg.AdjustInterval),
		power:       governor.NewStateMachine(cfg.MinPower, cfg.OnLimit, cfg.OffLimit),
		supplyShort: governor.NewWindow(cfg.ShortAvg),
		supplyLong:  governor.NewWindow(cfg.LongAvg),
		usageShort:  governor.NewWindow(cfg.ShortAvg),
		usageLong:   governor.NewWindow(cfg.LongAvg),
	}
}

// Run drives the tick loop until the context is cancelled or the meter
// fails. On clean termination the slaved machine is shut down and the relay
// opened rather than left in its last commanded state.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.meter.Init(ctx); err != nil {
		return fmt.Errorf("meter init: %w", err)
	}
	// Start from a known state: relay open, machine off.
	if err := c.meter.PowerOff(); err != nil {
		return fmt.Errorf("initial power off: %w", err)
	}

	log.Println("Controller started with default values, type 'help' for console commands")

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case <-ticker.C:
			if err := c.tick(); err != nil {
				_ = c.shutdown()
				return err
			}
		}
	}
}

// shutdown leaves the slaved machine off on the way out.
func (c *Controller) shutdown() error {
	if c.power.Powered() {
		c.link.SendMsg(msgShutdown)
	}
	if err := c.meter.PowerOff(); err != nil {
		return fmt.Errorf("final power off: %w", err)
	}
	log.Println("Controller stopped, slaved machine powered off")
	return nil
}

// tick runs one control iteration in the fixed order: operator events,
// status ingest, measurement, averaging, gearbox, power state, dispatch.
func (c *Controller) tick() error {
	if err := c.drainEvents(); err != nil {
		return err
	}
	c.ingestStatus()

	if err := c.meter.Measure(); err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	sample := c.meter.Measurements()

	supply := sample.SupplyPower
	if c.mode == ModeManualPower {
		supply = c.manualTarget
	}
	c.supplyShort.Push(supply)
	c.supplyLong.Push(supply)
	c.usageShort.Push(sample.UsagePower)
	c.usageLong.Push(sample.UsagePower)

	target := c.supplyShort.Average()
	measured := c.usageShort.Average()

	active := c.mode != ModeManualLimit && c.power.Powered()
	if c.gearbox.Tick(active, target, measured, &c.limits, c.pid) && c.cfg.Verbose {
		log.Printf("Adjust: target=%.1fW measured=%.1fW cores=%d cpu=%d%% integral=%.2f\n",
			target, measured, c.limits.Cores, c.limits.CPUPercent(), c.pid.Integral)
	}

	if c.mode != ModeManualLimit {
		switch c.power.Update(target) {
		case governor.PowerUp:
			if err := c.meter.PowerOn(); err != nil {
				return fmt.Errorf("power on: %w", err)
			}
			c.limits.Cores = 1
			log.Printf("Power up: target %.1fW sustained above %.1fW\n", target, c.cfg.MinPower)
		case governor.PowerDown:
			if err := c.meter.PowerOff(); err != nil {
				return fmt.Errorf("power off: %w", err)
			}
			c.limits.Cores = 0
			c.link.SendMsg(msgShutdown)
			log.Printf("Power down: target %.1fW sustained below %.1fW\n", target, c.cfg.MinPower)
		}
	}

	if c.power.Powered() {
		c.link.SendMsg(encodeControl(c.limits.Cores, c.limits.CPUPercent()))
		c.link.SendMsg(msgStatusPoll)
	}

	c.budget += target - measured
	if c.cfg.Verbose {
		log.Printf("Budget: %.1f (real cpu use %.1f)\n",
			c.budget, c.cfg.Calibration.RealUse(c.cpuUse, c.limits.Cores))
	}
	return nil
}

// ingestStatus folds in the newest status report, if any arrived since the
// previous tick. Missing or malformed reports mean zero usage for the tick;
// this path is never fatal.
func (c *Controller) ingestStatus() {
	c.cpuUse = 0
	raw, ok := c.link.WaitMsg()
	if !ok {
		return
	}
	msg, err := decodeInbound(raw)
	if err != nil {
		log.Printf("Received message contained invalid data: %v\n", err)
		return
	}
	if msg.kind == inboundStatus {
		c.cpuUse = msg.cpuUse
	}
}

// drainEvents applies all pending operator events. Only mode entry into
// manual limit touches hardware (the forced power-on), so this is the one
// event path that can fail.
func (c *Controller) drainEvents() error {
	for {
		select {
		case ev := <-c.events:
			if err := c.applyEvent(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *Controller) applyEvent(ev consoleEvent) error {
	switch ev.kind {
	case eventSetMode:
		c.mode = ev.mode
		log.Printf("Mode: %s\n", c.mode)
		if c.mode == ModeManualLimit && !c.power.Powered() {
			// Operator is taking direct control: force the machine
			// on once and keep it there.
			if err := c.meter.PowerOn(); err != nil {
				return fmt.Errorf("manual power on: %w", err)
			}
			c.power.Force(governor.On)
			if c.limits.Cores < 1 {
				c.limits.Cores = 1
			}
		}

	case eventSetGains:
		// Live retune: accumulated integral and previous error are kept.
		c.pid.Gains = ev.gains
		log.Printf("New values (P, I, D): %g, %g, %g\n", ev.gains.Kp, ev.gains.Ki, ev.gains.Kd)

	case eventSetLimits:
		c.limits.CPU = clampFloat(ev.cpu, governor.CPUMin, governor.CPUMax)
		c.limits.Cores = clampInt(ev.cores, 1, c.cfg.Calibration.Cores)
		log.Printf("New values (CPU, cores): %d, %d\n", c.limits.CPUPercent(), c.limits.Cores)

	case eventSetTarget:
		target := ev.target
		if target < 1 {
			target = 0
		}
		c.manualTarget = target
		log.Printf("Manual power target: %.1fW\n", c.manualTarget)

	case eventShowStatus:
		c.logStatus()
	}
	return nil
}

func (c *Controller) logStatus() {
	log.Printf("Mode: %s, power: %s, limits: %d cores at %d%%\n",
		c.mode, c.power.State(), c.limits.Cores, c.limits.CPUPercent())
	log.Printf("Gains (P, I, D): %g, %g, %g, integral: %.2f\n",
		c.pid.Gains.Kp, c.pid.Gains.Ki, c.pid.Gains.Kd, c.pid.Integral)
	log.Printf("Supply: %.1fW short / %.1fW long, usage: %.1fW short / %.1fW long\n",
		c.supplyShort.Average(), c.supplyLong.Average(),
		c.usageShort.Average(), c.usageLong.Average())
	log.Printf("Power budget: %.1f\n", c.budget)
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
