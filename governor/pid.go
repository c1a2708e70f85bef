package governor

// DT is the fixed PID time constant used for both the integral and the
// derivative term. It is a tuning constant, not wall-clock time: the tick
// loop is assumed to run at a steady cadence.
const DT = 4.0

// Integral clamp and damping bounds.
const (
	integralMax       = 10.0
	integralMin       = -10.0
	integralDampAbove = 5.0
)

// Gains holds the PID tuning values. They are operator-mutable at any time
// without resetting the accumulated state; tuning is live.
type Gains struct {
	Kp, Ki, Kd float64
}

// PID is a stateful regulator producing a CPU-percentage delta from a
// target/measured power pair. State persists across ticks.
type PID struct {
	Gains     Gains
	Integral  float64
	PrevError float64
}

// Adjust computes the adjustment for one activation.
//
// The output's integral term deliberately uses the integral from before this
// update: the one-tick lag is part of the regulator's tuned behavior and the
// default gains were chosen against it. Do not "fix" this to the fresh value.
func (p *PID) Adjust(target, measured float64) float64 {
	err := target - measured

	newIntegral := p.Integral + err*DT
	if newIntegral > integralMax {
		newIntegral = integralMax
	} else if newIntegral < integralMin {
		newIntegral = integralMin
	}

	derivative := (err - p.PrevError) / DT
	delta := p.Gains.Kp*err/10 + p.Gains.Ki*p.Integral/10 + p.Gains.Kd*derivative/10

	p.Integral = newIntegral
	p.PrevError = err
	return delta
}

// DampIntegral bleeds one unit off a large positive integral. The gearbox
// calls this on downshift so accumulated windup does not immediately push
// the limit back up.
func (p *PID) DampIntegral() {
	if p.Integral > integralDampAbove {
		p.Integral--
	}
}
