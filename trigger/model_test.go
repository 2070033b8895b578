package trigger_test

import (
	"testing"
	"time"

	"github.com/nabbar/edged/trigger"
)

func TestFireCancelsExistingSubscribers(t *testing.T) {
	reg := trigger.New()

	tok := reg.Subscribe(trigger.StopServices)

	select {
	case <-tok.Done():
		t.Fatal("token must not be cancelled before Fire")
	default:
	}

	reg.Fire(trigger.StopServices)

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("token must be cancelled after Fire")
	}
}

func TestSubscribeAfterFireIsLive(t *testing.T) {
	reg := trigger.New()

	reg.Fire(trigger.ReloadConfiguration)
	tok := reg.Subscribe(trigger.ReloadConfiguration)

	select {
	case <-tok.Done():
		t.Fatal("a token obtained after Fire must be live")
	default:
	}
}

func TestNamesTracksRegisteredTriggers(t *testing.T) {
	reg := trigger.New()
	reg.GetOrCreate(trigger.Shutdown)
	reg.GetOrCreate(trigger.StopServices)

	names := reg.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d: %v", len(names), names)
	}
}
