package breaker

import (
	"testing"
	"time"
)

func TestTrackerOpensAfterThreshold(t *testing.T) {
	tracker := New(3, time.Minute)

	tracker.RecordFailure("ep-1")
	tracker.RecordFailure("ep-1")
	if tracker.IsOpen("ep-1") {
		t.Fatal("circuit open before threshold")
	}

	tracker.RecordFailure("ep-1")
	if !tracker.IsOpen("ep-1") {
		t.Fatal("expected open circuit after 3 consecutive failures")
	}
	if tracker.IsOpen("ep-2") {
		t.Fatal("unrelated endpoint affected")
	}
}

func TestTrackerSuccessCloses(t *testing.T) {
	tracker := New(2, time.Minute)
	tracker.RecordFailure("ep-1")
	tracker.RecordFailure("ep-1")
	if !tracker.IsOpen("ep-1") {
		t.Fatal("expected open circuit")
	}

	tracker.RecordSuccess("ep-1")
	if tracker.IsOpen("ep-1") {
		t.Fatal("expected closed circuit after success")
	}
	if got := tracker.State("ep-1").ConsecutiveFailures; got != 0 {
		t.Fatalf("expected reset counter, got %d", got)
	}
}

func TestTrackerCooldownReopens(t *testing.T) {
	tracker := New(1, 10*time.Minute)
	current := time.Now()
	tracker.now = func() time.Time { return current }

	tracker.RecordFailure("ep-1")
	if !tracker.IsOpen("ep-1") {
		t.Fatal("expected open circuit")
	}

	current = current.Add(11 * time.Minute)
	if tracker.IsOpen("ep-1") {
		t.Fatal("expected circuit closed after cooldown")
	}
	// A fresh failure after the cooldown reopens immediately at threshold 1.
	tracker.RecordFailure("ep-1")
	if !tracker.IsOpen("ep-1") {
		t.Fatal("expected circuit reopened")
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := New(1, time.Minute)
	tracker.RecordFailure("ep-1")
	tracker.RecordFailure("ep-2")

	tracker.Reset("ep-1")
	if tracker.IsOpen("ep-1") {
		t.Fatal("expected ep-1 reset")
	}
	if !tracker.IsOpen("ep-2") {
		t.Fatal("expected ep-2 untouched")
	}

	tracker.ResetAll()
	if tracker.IsOpen("ep-2") {
		t.Fatal("expected all state cleared")
	}
}
