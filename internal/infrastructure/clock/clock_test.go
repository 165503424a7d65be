package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var order []string
	c.AfterFunc(300*time.Millisecond, func() { order = append(order, "late") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "early") })

	c.Advance(50 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("nothing should fire before its deadline, got %v", order)
	}

	c.Advance(500 * time.Millisecond)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("unexpected fire order: %v", order)
	}
	if got := c.Now(); !got.Equal(epoch.Add(550 * time.Millisecond)) {
		t.Errorf("Now() = %v after advancing", got)
	}
}

func TestFakeStopCancelsPendingCall(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on a pending timer should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeCallbackSeesItsDeadline(t *testing.T) {
	c := NewFake(epoch)
	var seen time.Time
	c.AfterFunc(150*time.Millisecond, func() { seen = c.Now() })
	c.Advance(time.Second)
	if !seen.Equal(epoch.Add(150 * time.Millisecond)) {
		t.Errorf("callback observed %v, want deadline", seen)
	}
}

func TestFakeRescheduleFromCallback(t *testing.T) {
	c := NewFake(epoch)
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(3500 * time.Millisecond)
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want the next tick scheduled", c.Pending())
	}
}

// Collector tests read state straight after Advance with no extra
// synchronization, so callbacks must have finished by the time it returns.
func TestFakeAdvanceRunsCallbacksBeforeReturning(t *testing.T) {
	c := NewFake(epoch)
	done := make(chan struct{})
	c.AfterFunc(10*time.Millisecond, func() { close(done) })

	c.Advance(10 * time.Millisecond)
	select {
	case <-done:
	default:
		t.Fatal("callback had not run when Advance returned")
	}
}
