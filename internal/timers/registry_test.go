package timers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStartAfterFires(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	fired := make(chan struct{})
	r.StartAfter("v1", KindHandoffTimeout, 10*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	if r.Active("v1", KindHandoffTimeout) {
		t.Error("fired timer should no longer be active")
	}
}

func TestStartAfterReplacesPrevious(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	var firstFired, secondFired atomic.Bool
	done := make(chan struct{})

	r.StartAfter("v1", KindInactivity, 20*time.Millisecond, func() {
		firstFired.Store(true)
	})
	// Replacement cancels the predecessor of the same kind.
	r.StartAfter("v1", KindInactivity, 40*time.Millisecond, func() {
		secondFired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement timer did not fire")
	}

	if firstFired.Load() {
		t.Error("replaced timer fired anyway")
	}
	if !secondFired.Load() {
		t.Error("replacement timer did not fire")
	}
}

func TestDifferentKindsCoexist(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	r.StartAfter("v1", KindHandoffTimeout, time.Hour, func() {})
	r.StartAfter("v1", KindInactivity, time.Hour, func() {})

	if !r.Active("v1", KindHandoffTimeout) || !r.Active("v1", KindInactivity) {
		t.Error("timers of different kinds should coexist")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	var fired atomic.Bool
	r.StartAfter("v1", KindHandoffTimeout, 20*time.Millisecond, func() {
		fired.Store(true)
	})
	r.Cancel("v1", KindHandoffTimeout)

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer fired")
	}
	if r.Active("v1", KindHandoffTimeout) {
		t.Error("cancelled timer should not be active")
	}
}

func TestCancelAll(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	r.StartAfter("v1", KindHandoffTimeout, time.Hour, func() {})
	r.StartAfter("v1", KindInactivity, time.Hour, func() {})
	r.StartRepeating("v1", KindWaiting, time.Hour, func() {})
	r.StartRepeating("v1", KindDuration, time.Hour, func() {})
	r.StartAfter("v2", KindHandoffTimeout, time.Hour, func() {})

	r.CancelAll("v1")

	for _, kind := range []Kind{KindHandoffTimeout, KindInactivity, KindWaiting, KindDuration} {
		if r.Active("v1", kind) {
			t.Errorf("timer %s still active after CancelAll", kind)
		}
	}
	if !r.Active("v2", KindHandoffTimeout) {
		t.Error("CancelAll cancelled another visitor's timer")
	}
}

func TestStartRepeatingTicks(t *testing.T) {
	r := NewRegistry()
	defer r.Stop()

	var ticks atomic.Int64
	r.StartRepeating("v1", KindWaiting, 10*time.Millisecond, func() {
		ticks.Add(1)
	})

	deadline := time.After(time.Second)
	for ticks.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("ticker did not tick twice")
		case <-time.After(5 * time.Millisecond):
		}
	}

	r.Cancel("v1", KindWaiting)
	stopped := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if ticks.Load() > stopped+1 {
		t.Error("ticker kept ticking after cancel")
	}
}

func TestStoppedRegistryRejectsScheduling(t *testing.T) {
	r := NewRegistry()
	r.Stop()

	var fired atomic.Bool
	r.StartAfter("v1", KindHandoffTimeout, time.Millisecond, func() {
		fired.Store(true)
	})

	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Error("stopped registry scheduled a timer")
	}
}
