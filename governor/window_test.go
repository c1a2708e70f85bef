package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowSeededWithZero(t *testing.T) {
	w := NewWindow(6)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 0.0, w.Average())
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
	}
	// Seed zero and 1, 2 evicted; last three survive in order.
	assert.Equal(t, []float64{3, 4, 5}, w.Values())
	assert.Equal(t, 4.0, w.Average())
}

func TestWindowAverageIsArithmeticMean(t *testing.T) {
	w := NewWindow(4)
	w.Push(10)
	w.Push(20)
	// Seed zero still counts until evicted: (0 + 10 + 20) / 3
	assert.InDelta(t, 10.0, w.Average(), 1e-9)

	w.Push(30)
	w.Push(40)
	// Seed evicted: (10 + 20 + 30 + 40) / 4
	assert.InDelta(t, 25.0, w.Average(), 1e-9)
}

func TestWindowCapacityOne(t *testing.T) {
	// SHORT_AVG of 1 effectively disables smoothing: the window always
	// holds exactly the latest sample.
	w := NewWindow(1)
	w.Push(12.5)
	assert.Equal(t, 12.5, w.Average())
	w.Push(40)
	assert.Equal(t, 40.0, w.Average())
	assert.Equal(t, 1, w.Len())
}
