package cgi

import "testing"

func TestWorkerStateString(t *testing.T) {
	cases := map[WorkerState]string{
		Stopped:        "stopped",
		Starting:       "starting",
		Running:        "running",
		Failed:         "failed",
		WorkerState(9): "unknown",
	}

	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: got %q want %q", state, got, want)
		}
	}
}
