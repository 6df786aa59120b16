package neuron

const (
	// DefaultThreshold is the firing threshold a detector starts from.
	DefaultThreshold float32 = 0.2
	// DefaultAdaptRate is the fraction by which the threshold moves per frame.
	DefaultAdaptRate float32 = 0.1
)

// Threshold is an adaptive firing threshold. After a spike it rises toward 1
// and after a quiet frame it decays toward 0.
type Threshold struct {
	value float32
	rate  float32
}

// NewThreshold returns a threshold starting at initial.
func NewThreshold(initial, rate float32) Threshold {
	return Threshold{value: initial, rate: rate}
}

// Value returns the current threshold.
func (t *Threshold) Value() float32 { return t.value }

// Observe reports whether activation fires and then adapts the threshold.
func (t *Threshold) Observe(activation float32) bool {
	if activation > t.value {
		t.value += (1 - t.value) * t.rate
		return true
	}
	t.value *= 1 - t.rate
	return false
}
