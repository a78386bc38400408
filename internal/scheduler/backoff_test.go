package scheduler

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_SequenceMatchesSpecDefaults(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cap := 64 * time.Second

	cases := []struct {
		attempt  int
		wantBase time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, c := range cases {
		d := backoff(c.attempt, cap, rng)
		lo := time.Duration(float64(c.wantBase) * 0.5)
		if d < lo || d > c.wantBase {
			t.Fatalf("attempt %d: got %v, want in [%v, %v]", c.attempt, d, lo, c.wantBase)
		}
	}
}

func TestBackoff_CappedAtLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cap := 10 * time.Second

	d := backoff(10, cap, rng) // 2^9s uncapped, far above cap
	if d > cap {
		t.Fatalf("expected backoff to respect cap of %v, got %v", cap, d)
	}
}

func TestBackoff_NeverNegativeOrZero(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for attempt := 0; attempt < 20; attempt++ {
		d := backoff(attempt, 64*time.Second, rng)
		if d <= 0 {
			t.Fatalf("attempt %d: backoff returned non-positive duration %v", attempt, d)
		}
	}
}
