package library

import (
	"testing"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/relay"
)

func TestControllerClaimAndRelease(t *testing.T) {
	hub := relay.NewHub()
	rec, remove := newEventRecorder(hub)
	defer remove()

	c := newController("celeste", hub)
	if got := c.Status(); got != relay.StatusIdle {
		t.Fatalf("initial status = %s, want idle", got)
	}

	if err := c.begin(relay.StatusInstalling); err != nil {
		t.Fatalf("begin() error: %v", err)
	}
	if got := c.Status(); got != relay.StatusInstalling {
		t.Errorf("status = %s, want installing", got)
	}

	err := c.begin(relay.StatusUpdating)
	if !errors.Is(err, errors.ErrOperationInProgress) {
		t.Fatalf("begin() while busy: error = %v, want ErrOperationInProgress", err)
	}

	c.end(relay.StatusInstalling, relay.Succeeded())
	if got := c.Status(); got != relay.StatusIdle {
		t.Errorf("status after end = %s, want idle", got)
	}
	if n := rec.resultCount("celeste"); n != 1 {
		t.Errorf("terminal events = %d, want 1", n)
	}

	// Released entities accept the next claim.
	if err := c.begin(relay.StatusRepairing); err != nil {
		t.Errorf("begin() after release: %v", err)
	}
}

func TestControllerTransition(t *testing.T) {
	hub := relay.NewHub()
	rec, remove := newEventRecorder(hub)
	defer remove()

	c := newController("celeste", hub)
	if err := c.begin(relay.StatusLaunching); err != nil {
		t.Fatalf("begin() error: %v", err)
	}
	c.transition(relay.StatusRunning)

	if got := c.Status(); got != relay.StatusRunning {
		t.Errorf("status = %s, want running", got)
	}
	want := []relay.Status{relay.StatusLaunching, relay.StatusRunning}
	got := rec.statuses("celeste")
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("status sequence = %v, want %v", got, want)
	}
}
