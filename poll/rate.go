package poll

import (
	"fmt"
)

// MovingAverage is a moving average filter over the last values added.
type MovingAverage struct {
	values []float64
	index  int
	count  int
	sum    float64
}

// NewMovingAverage returns a moving average over a history of given size.
func NewMovingAverage(size int) (*MovingAverage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}
	return &MovingAverage{values: make([]float64, size)}, nil
}

// Add adds v to the history and returns the average of the values in the
// history. Until the history is full, only the values added so far count.
func (m *MovingAverage) Add(v float64) float64 {
	m.sum -= m.values[m.index]
	m.sum += v
	m.values[m.index] = v
	m.index++
	if m.index >= len(m.values) {
		m.index = 0
	}
	if m.count < len(m.values) {
		m.count++
	}
	return m.sum / float64(m.count)
}

// Average returns the current average, 0 when nothing was added.
func (m *MovingAverage) Average() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}
