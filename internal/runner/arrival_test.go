package runner

import (
	"context"
	"testing"
	"time"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{rate: 200, sample: func() float64 { return 1 }}
	if delay, want := ctrl.nextDelay(), time.Second/200; delay != want {
		t.Fatalf("expected delay %s, got %s", want, delay)
	}

	ctrl.sample = func() float64 { return 2.5 }
	if delay, want := ctrl.nextDelay(), 12500*time.Microsecond; delay != want {
		t.Fatalf("expected delay %s, got %s", want, delay)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{rate: 0.000001, sample: func() float64 { return 1 }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestPoissonArrivalSeededSamplerIsDeterministic(t *testing.T) {
	opts := Options{RatePerSecond: 100, ArrivalModel: ArrivalModelPoisson, RandomSeed: 42}
	opts.normalize()
	a := newArrivalController(opts).(*poissonArrival)
	b := newArrivalController(opts).(*poissonArrival)
	for i := 0; i < 5; i++ {
		if da, db := a.nextDelay(), b.nextDelay(); da != db {
			t.Fatalf("draw %d differs: %s vs %s", i, da, db)
		}
	}
}
