package portmanager_test

import (
	"testing"

	"github.com/nabbar/edged/portmanager"
)

func TestAllocateReleaseRoundTrip(t *testing.T) {
	m := portmanager.New(9000, 9002)

	before := m.AvailableCount()

	p, ok := m.Allocate("svc-a")
	if !ok {
		t.Fatal("expected a free port")
	}
	if p < 9000 || p > 9002 {
		t.Fatalf("port %d outside range", p)
	}

	m.Release(p)

	if got := m.AvailableCount(); got != before {
		t.Fatalf("availability not restored: got %d want %d", got, before)
	}
}

func TestAllocateExhaustionYieldsFalse(t *testing.T) {
	m := portmanager.New(9000, 9001)

	m.Allocate("a")
	m.Allocate("b")

	if _, ok := m.Allocate("c"); ok {
		t.Fatal("expected exhaustion, got a port")
	}
}

func TestReleaseAllForService(t *testing.T) {
	m := portmanager.New(9000, 9005)

	p1, _ := m.Allocate("svc")
	p2, _ := m.Allocate("svc")
	_, _ = m.Allocate("other")

	freed := m.ReleaseAllForService("svc")
	if len(freed) != 2 {
		t.Fatalf("expected 2 freed ports, got %d", len(freed))
	}

	for _, p := range freed {
		if p != p1 && p != p2 {
			t.Fatalf("unexpected freed port %d", p)
		}
	}
}

func TestReleaseNonAllocatedIsNoop(t *testing.T) {
	m := portmanager.New(9000, 9002)
	before := m.AvailableCount()
	m.Release(9001)
	if got := m.AvailableCount(); got != before {
		t.Fatalf("releasing a free port changed availability: got %d want %d", got, before)
	}
}
