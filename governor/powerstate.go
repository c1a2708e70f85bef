package governor

// PowerState is the commanded state of the slaved machine.
type PowerState int

const (
	Off PowerState = iota
	On
)

func (s PowerState) String() string {
	if s == On {
		return "on"
	}
	return "off"
}

// Transition is the outcome of one state machine evaluation. Side effects
// (relay switching, shutdown notification) belong to the caller.
type Transition int

const (
	NoTransition Transition = iota
	PowerUp
	PowerDown
)

// StateMachine decides power on/off transitions from sustained threshold
// crossings. Each direction keeps a count of consecutive ticks its condition
// has held, reset to zero the moment the condition fails; the transition
// fires when the count exceeds the direction's limit. Both counts clear on
// any transition.
type StateMachine struct {
	state    PowerState
	minPower float64
	onLimit  int
	offLimit int
	onTicks  int
	offTicks int
}

// NewStateMachine creates the machine in the Off state.
func NewStateMachine(minPower float64, onLimit, offLimit int) *StateMachine {
	return &StateMachine{
		minPower: minPower,
		onLimit:  onLimit,
		offLimit: offLimit,
	}
}

// Update evaluates one tick against the current power target. With limit L
// the transition fires on the L+1-th consecutive qualifying tick. A target
// exactly at the threshold satisfies neither condition and resets both
// counts.
func (m *StateMachine) Update(target float64) Transition {
	if m.state == On && target < m.minPower {
		m.offTicks++
	} else {
		m.offTicks = 0
	}
	if m.state == Off && target > m.minPower {
		m.onTicks++
	} else {
		m.onTicks = 0
	}

	switch {
	case m.onTicks > m.onLimit:
		m.state = On
		m.onTicks, m.offTicks = 0, 0
		return PowerUp
	case m.offTicks > m.offLimit:
		m.state = Off
		m.onTicks, m.offTicks = 0, 0
		return PowerDown
	}
	return NoTransition
}

// Force pins the state directly, clearing both counts. Manual limit mode
// uses this to hold the machine on regardless of measured power.
func (m *StateMachine) Force(s PowerState) {
	m.state = s
	m.onTicks, m.offTicks = 0, 0
}

// State returns the current commanded state.
func (m *StateMachine) State() PowerState {
	return m.state
}

// Powered reports whether the slaved machine is commanded on.
func (m *StateMachine) Powered() bool {
	return m.state == On
}
