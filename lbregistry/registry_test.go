package lbregistry_test

import (
	"testing"

	"github.com/nabbar/edged/lbregistry"
)

func TestRoundRobinCyclesInOrder(t *testing.T) {
	b := lbregistry.NewRoundRobin([]string{"u1", "u2", "u3"})

	want := []string{"u1", "u2", "u3", "u1"}
	for i, w := range want {
		got, ok := b.Next()
		if !ok {
			t.Fatalf("call %d: expected a server", i)
		}
		if got != w {
			t.Fatalf("call %d: got %q want %q", i, got, w)
		}
	}
}

func TestEmptyUpstreamsYieldsFalse(t *testing.T) {
	b := lbregistry.NewRoundRobin(nil)
	if _, ok := b.Next(); ok {
		t.Fatal("expected false for empty upstream list")
	}
}

func TestEnsureReusesBalancer(t *testing.T) {
	reg := lbregistry.New()

	calls := 0
	factory := func() lbregistry.Balancer {
		calls++
		return lbregistry.NewRoundRobin([]string{"a"})
	}

	b1 := reg.Ensure(1, factory)
	b2 := reg.Ensure(1, factory)

	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
	if b1 != b2 {
		t.Fatal("expected the same balancer instance")
	}
}
