// Package governor provides the control algorithms for tracking solar supply:
// moving-average smoothing, PID regulation, the core-count gearbox, and the
// power on/off hysteresis machine. Everything here is pure state + arithmetic;
// side effects belong to the callers.
package governor

// Window is a bounded FIFO of power samples used for moving averages.
// A new window holds a single zero so Average is always defined.
type Window struct {
	values   []float64
	capacity int
}

// NewWindow creates a window with the given capacity, pre-seeded with one zero.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		values:   append(make([]float64, 0, capacity+1), 0),
		capacity: capacity,
	}
}

// Push appends a sample, evicting the oldest once capacity is exceeded.
func (w *Window) Push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.capacity {
		w.values = w.values[1:]
	}
}

// Average returns the arithmetic mean of the held samples.
func (w *Window) Average() float64 {
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// Len returns the number of held samples.
func (w *Window) Len() int {
	return len(w.values)
}

// Values returns the held samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}
