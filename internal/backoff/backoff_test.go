package backoff

import (
	"testing"
	"time"
)

func TestComputeWithRandClampsToMax(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0}
	got := ComputeWithRand(p, 10, 0)
	if got != 1000*time.Millisecond {
		t.Fatalf("expected clamp to max, got %v", got)
	}
}

func TestComputeWithRandFirstAttempt(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0}
	got := ComputeWithRand(p, 1, 0)
	if got != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %v", got)
	}
}

func TestForDeliverySchedule(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Second},
		{1, 25 * time.Second},
		{2, 2 * time.Minute},
		{3, 10 * time.Minute},
		{4, 10 * time.Minute},
		{99, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := ForDelivery(c.retryCount); got != c.want {
			t.Errorf("ForDelivery(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}
