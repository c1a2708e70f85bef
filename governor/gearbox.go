package governor

import "fmt"

// CPU percentage bounds. The floor exists because the client-side limiting
// mechanism cannot enforce anything below 7%.
const (
	CPUMin = 7.0
	CPUMax = 100.0
)

// Limits is the authoritative control output: percentage of each active core
// and active core count. CPU is kept fractional between activations so small
// PID deltas accumulate; it is truncated to an integer on the wire.
type Limits struct {
	CPU   float64 // percent of each active core, clamped [7,100]
	Cores int     // active cores, 0 only while unpowered
}

// CPUPercent returns the integer percentage sent to the slaved machine.
func (l Limits) CPUPercent() int {
	return int(l.CPU)
}

// Calibration is the static power model of the slaved machine's CPU.
// Values ship for one reference processor and are replaceable per deployment.
type Calibration struct {
	// Cores is the maximum number of active cores.
	Cores int `yaml:"cores"`
	// CoreLimits holds sustained power draw thresholds in watts,
	// length Cores+1: index 0 is the idle baseline, index n the draw
	// with n active cores. Must increase monotonically.
	CoreLimits []float64 `yaml:"core_limits"`
	// Multipliers convert a client-reported CPU percentage into an
	// estimated real usage figure, indexed by active core count.
	Multipliers []float64 `yaml:"multipliers"`
	// Brackets picks the CoreLimits index pair {upper, lower} used to
	// interpolate the CPU percentage after a downshift to core count n.
	// Adjacent physical cores may share near-identical ceilings, so the
	// pairs are calibration data rather than simply (n, n-1).
	// Length Cores+1; entry 0 is unused.
	Brackets [][2]int `yaml:"brackets"`
	// Deadzone is the margin in watts below a core's threshold before a
	// downshift triggers, preventing oscillation near the boundary.
	Deadzone float64 `yaml:"deadzone"`
}

// DefaultCalibration returns the shipped values for the reference CPU
// (Intel Core i3-4330, 4 cores).
func DefaultCalibration() Calibration {
	return Calibration{
		Cores:       4,
		CoreLimits:  []float64{16, 31.0, 33.4, 47, 51.5},
		Multipliers: []float64{0, 4.0, 2.0, 1.34, 1.0},
		Brackets:    [][2]int{{0, 0}, {1, 0}, {2, 0}, {4, 2}, {4, 2}},
		Deadzone:    1.5,
	}
}

// Validate checks the calibration for deployment mistakes. A failure here is
// a miscalibrated deployment and must abort startup, not be ridden through.
func (c Calibration) Validate() error {
	if c.Cores < 1 {
		return fmt.Errorf("calibration: cores must be >= 1, got %d", c.Cores)
	}
	if len(c.CoreLimits) != c.Cores+1 {
		return fmt.Errorf("calibration: core_limits needs %d entries (cores+1), got %d", c.Cores+1, len(c.CoreLimits))
	}
	for i := 1; i < len(c.CoreLimits); i++ {
		if c.CoreLimits[i] <= c.CoreLimits[i-1] {
			return fmt.Errorf("calibration: core_limits must increase monotonically, entry %d (%.2f) <= entry %d (%.2f)",
				i, c.CoreLimits[i], i-1, c.CoreLimits[i-1])
		}
	}
	if len(c.Multipliers) != c.Cores+1 {
		return fmt.Errorf("calibration: multipliers needs %d entries (cores+1), got %d", c.Cores+1, len(c.Multipliers))
	}
	if len(c.Brackets) != c.Cores+1 {
		return fmt.Errorf("calibration: brackets needs %d entries (cores+1), got %d", c.Cores+1, len(c.Brackets))
	}
	for n := 1; n <= c.Cores; n++ {
		upper, lower := c.Brackets[n][0], c.Brackets[n][1]
		if lower < 0 || upper > c.Cores || upper <= lower {
			return fmt.Errorf("calibration: bracket %d {%d,%d} out of range or inverted", n, upper, lower)
		}
	}
	if c.Deadzone < 0 {
		return fmt.Errorf("calibration: deadzone must be >= 0, got %.2f", c.Deadzone)
	}
	return nil
}

// RealUse estimates actual core-weighted CPU usage from a client-reported
// percentage. Diagnostic only.
func (c Calibration) RealUse(reported float64, cores int) float64 {
	if cores < 0 || cores >= len(c.Multipliers) {
		return 0
	}
	return c.Multipliers[cores] * reported
}

// Gearbox maps the running power target against the calibrated per-core power
// table to pick a core count and snap the CPU percentage near its correct
// value. Power draw is highly non-linear in core count but roughly linear in
// per-core utilization, so the piecewise interpolation gives the PID a
// near-correct starting point after a step change in supply instead of
// letting it crawl there.
type Gearbox struct {
	calib    Calibration
	interval int
	counter  int
}

// NewGearbox creates a gearbox firing once the tick counter exceeds interval.
func NewGearbox(calib Calibration, interval int) *Gearbox {
	return &Gearbox{calib: calib, interval: interval}
}

// Tick advances the adjustment cadence and, when it fires with active set,
// applies one adjustment: PID delta, then up/downshift with interpolation
// snap, then the unconditional CPU clamp. The counter advances and resets on
// every tick regardless of active, so suppressed ticks (manual mode,
// unpowered) do not shift the cadence. Reports whether an adjustment ran.
func (g *Gearbox) Tick(active bool, target, measured float64, limits *Limits, pid *PID) bool {
	fire := g.counter > g.interval
	if fire {
		g.counter = 0
	}
	g.counter++

	if !fire || !active {
		return false
	}

	limits.CPU += pid.Adjust(target, measured)

	table := g.calib.CoreLimits
	switch {
	case target > table[limits.Cores]:
		// Upshift: more cores, recompute percentage inside the new band.
		limits.Cores++
		if limits.Cores > g.calib.Cores {
			limits.Cores = g.calib.Cores
		} else {
			upper := table[limits.Cores]
			lower := table[limits.Cores-1]
			limits.CPU = interpolate(target, upper, lower)
		}
	case limits.Cores > 1 && target < table[limits.Cores-1]-g.calib.Deadzone:
		// Downshift: fewer cores, interpolate over the calibrated bracket.
		limits.Cores--
		if limits.Cores < 1 {
			limits.Cores = 1
		} else {
			bracket := g.calib.Brackets[limits.Cores]
			upper := table[bracket[0]]
			lower := table[bracket[1]]
			limits.CPU = interpolate(target, upper, lower)
			pid.DampIntegral()
		}
	}

	if limits.CPU > CPUMax {
		limits.CPU = CPUMax
	} else if limits.CPU < CPUMin {
		limits.CPU = CPUMin
	}
	return true
}

// interpolate returns the position of target between lower and upper scaled
// to [0,100] and truncated, the original controller's snap formula.
func interpolate(target, upper, lower float64) float64 {
	return float64(int((target - lower) / (upper - lower) * 100))
}
