package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testMinPower = 18.0

func TestPowerUpBoundaryIsExact(t *testing.T) {
	m := NewStateMachine(testMinPower, 2, 2)

	// With limit 2 the transition fires on the third consecutive tick
	// above the threshold, not before.
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, PowerUp, m.Update(20))
	assert.True(t, m.Powered())
}

func TestPowerUpCounterResetsOnDip(t *testing.T) {
	m := NewStateMachine(testMinPower, 2, 2)

	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(17)) // dip resets the run
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, PowerUp, m.Update(20))
}

func TestSustainedBelowWhileOffNeverPowersOn(t *testing.T) {
	m := NewStateMachine(testMinPower, 2, 2)

	for i := 0; i < 20; i++ {
		assert.Equal(t, NoTransition, m.Update(5))
	}
	assert.False(t, m.Powered())
}

func TestPowerDownBoundaryIsExact(t *testing.T) {
	m := NewStateMachine(testMinPower, 2, 2)
	m.Force(On)

	assert.Equal(t, NoTransition, m.Update(5))
	assert.Equal(t, NoTransition, m.Update(5))
	assert.Equal(t, PowerDown, m.Update(5))
	assert.False(t, m.Powered())
}

func TestExactThresholdSatisfiesNeitherCondition(t *testing.T) {
	m := NewStateMachine(testMinPower, 2, 2)

	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(testMinPower)) // resets the run
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, NoTransition, m.Update(20))
	assert.Equal(t, PowerUp, m.Update(20))
}

func TestCountersClearAfterTransition(t *testing.T) {
	m := NewStateMachine(testMinPower, 1, 1)

	m.Update(20)
	assert.Equal(t, PowerUp, m.Update(20))

	// Freshly on: the off run starts from zero.
	assert.Equal(t, NoTransition, m.Update(5))
	assert.Equal(t, PowerDown, m.Update(5))
}

func TestForcePinsState(t *testing.T) {
	m := NewStateMachine(testMinPower, 2, 2)
	m.Force(On)
	assert.True(t, m.Powered())
	assert.Equal(t, On, m.State())

	m.Force(Off)
	assert.False(t, m.Powered())
}
