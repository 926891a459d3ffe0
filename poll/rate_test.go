package poll_test

import (
	"testing"

	"github.com/photobook/dualcam/poll"
)

func TestMovingAverage(t *testing.T) {
	if _, err := poll.NewMovingAverage(0); err == nil {
		t.Fatalf("missing error for size 0")
	}

	m, err := poll.NewMovingAverage(3)
	if err != nil {
		t.Fatalf("new moving average: %v", err)
	}
	if m.Average() != 0 {
		t.Fatalf("average of empty history, got %v", m.Average())
	}
	if r := m.Add(3); r != 3 {
		t.Fatalf("unexpected result after first Add: %v", r)
	}
	if r := m.Add(6); r != 4.5 {
		t.Fatalf("unexpected result after second Add: %v", r)
	}
	if r := m.Add(9); r != 6 {
		t.Fatalf("unexpected result after third Add: %v", r)
	}
	// The first value drops out of the history.
	if r := m.Add(12); r != 9 {
		t.Fatalf("unexpected result after fourth Add: %v", r)
	}
	if m.Average() != 9 {
		t.Fatalf("average, got %v", m.Average())
	}
}
