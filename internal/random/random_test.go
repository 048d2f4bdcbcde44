package random_test

import (
	"testing"

	"github.com/torosent/poolbench/internal/random"
)

func TestDerivedSourcesAreDeterministic(t *testing.T) {
	a := random.NewMaster(42)
	b := random.NewMaster(42)

	for i := 0; i < 5; i++ {
		sa, sb := a.Derive(), b.Derive()
		if sa.Seed() != sb.Seed() {
			t.Fatalf("derive %d: seeds differ: %d vs %d", i, sa.Seed(), sb.Seed())
		}
		for j := 0; j < 10; j++ {
			if x, y := sa.Int(), sb.Int(); x != y {
				t.Fatalf("derive %d draw %d: %d vs %d", i, j, x, y)
			}
		}
	}
}

func TestDerivedSourcesDiffer(t *testing.T) {
	m := random.NewMaster(7)
	first, second := m.Derive(), m.Derive()
	if first.Seed() == second.Seed() {
		t.Fatalf("expected distinct seeds, both %d", first.Seed())
	}
}

func TestIntnBounds(t *testing.T) {
	s := random.NewSource(1)
	for i := 0; i < 1000; i++ {
		v := s.Intn(10)
		if v < 0 || v >= 10 {
			t.Fatalf("Intn(10) out of range: %d", v)
		}
		if s.Int() < 0 {
			t.Fatalf("Int returned negative value")
		}
	}
	if got := s.Intn(0); got != 0 {
		t.Fatalf("Intn(0) = %d, want 0", got)
	}
}
