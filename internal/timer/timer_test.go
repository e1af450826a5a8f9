package timer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/remotesync/internal/testutil/testlog"
)

const testInterval = 2 * time.Millisecond

func newTestTimer(t *testing.T) *Timer {
	t.Helper()
	tmr := New(testInterval)
	t.Cleanup(func() {
		tmr.Stop().ClearExceptions()
	})
	return tmr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestDefaults(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	if tmr.Count() != 0 {
		t.Fatalf("count=%d", tmr.Count())
	}
	if tmr.Limit() != Unlimited {
		t.Fatalf("limit=%d", tmr.Limit())
	}
	if tmr.Running() {
		t.Fatalf("new timer should be idle")
	}
	if tmr.Interval() != testInterval {
		t.Fatalf("interval=%v", tmr.Interval())
	}
	if len(tmr.Exceptions()) != 0 {
		t.Fatalf("unexpected exceptions")
	}
}

func TestLimitChanged(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	if got := tmr.SetLimit(999).Limit(); got != 999 {
		t.Fatalf("limit=%d", got)
	}
}

func TestRunningTransitions(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	tmr.SetHandler(func(...any) error { return nil }).Start()
	if !tmr.Running() {
		t.Fatalf("expected running after start")
	}
	tmr.Start()
	if !tmr.Running() {
		t.Fatalf("second start should be a no-op")
	}
	if tmr.Stop().Running() {
		t.Fatalf("expected idle after stop")
	}
	tmr.Stop()
}

func TestLimitEnforced(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	var calls atomic.Int32
	tmr.SetHandler(func(...any) error {
		calls.Add(1)
		return nil
	}).SetLimit(3).Start()

	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	time.Sleep(5 * testInterval)
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls=%d want 3", got)
	}
	if tmr.Count() != 3 {
		t.Fatalf("count=%d want 3", tmr.Count())
	}
}

func TestZeroLimitNeverInvokes(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	var calls atomic.Int32
	tmr.SetHandler(func(...any) error {
		calls.Add(1)
		return nil
	}).SetLimit(0).Start()

	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	if calls.Load() != 0 || tmr.Count() != 0 {
		t.Fatalf("calls=%d count=%d", calls.Load(), tmr.Count())
	}
}

func TestCountMatchesCalls(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	var calls atomic.Int32
	tmr.SetHandler(func(...any) error {
		calls.Add(1)
		return nil
	}).Start()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
	tmr.Stop()
	time.Sleep(5 * testInterval)
	if int(calls.Load()) != tmr.Count() {
		t.Fatalf("calls=%d count=%d", calls.Load(), tmr.Count())
	}
	before := tmr.Count()
	time.Sleep(5 * testInterval)
	if tmr.Count() != before {
		t.Fatalf("timer fired after stop")
	}
}

func TestExceptionsCollected(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	failure := errors.New("test failure")
	tmr.SetHandler(func(...any) error { return failure }).SetLimit(4).Start()

	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	errs := tmr.Exceptions()
	if len(errs) != 4 {
		t.Fatalf("exceptions=%d want 4", len(errs))
	}
	for i, err := range errs {
		if !errors.Is(err, failure) {
			t.Fatalf("exception %d = %v", i, err)
		}
	}
	if len(tmr.ClearExceptions().Exceptions()) != 0 {
		t.Fatalf("exceptions not cleared")
	}
}

func TestFailingHandlerKeepsRunning(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	tmr.SetHandler(func(...any) error { return errors.New("boom") }).Start()

	waitFor(t, time.Second, func() bool { return len(tmr.Exceptions()) >= 3 })
	if !tmr.Running() {
		t.Fatalf("timer stopped after handler failures")
	}
}

func TestPanicRecorded(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	tmr.SetHandler(func(...any) error { panic("bad") }).SetLimit(1).Start()

	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	errs := tmr.Exceptions()
	if len(errs) != 1 {
		t.Fatalf("exceptions=%d want 1", len(errs))
	}
	var pe PanicError
	if !errors.As(errs[0], &pe) || pe.Value != "bad" {
		t.Fatalf("unexpected exception: %v", errs[0])
	}
}

func TestInvokedWithArguments(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)

	var mu sync.Mutex
	var got []any
	tmr.SetHandler(func(args ...any) error {
		mu.Lock()
		got = args
		mu.Unlock()
		return nil
	}, 1, "two", 3.0).SetLimit(1).Start()

	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != "two" || got[2] != 3.0 {
		t.Fatalf("unexpected args: %#v", got)
	}
}

func TestHandlerMayStopTimer(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	tmr.SetHandler(func(...any) error {
		tmr.Stop()
		return nil
	}).Start()

	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	time.Sleep(5 * testInterval)
	if tmr.Count() != 1 {
		t.Fatalf("count=%d want 1", tmr.Count())
	}
}

func TestRestartContinuesCount(t *testing.T) {
	testlog.Start(t)
	tmr := newTestTimer(t)
	tmr.SetHandler(func(...any) error { return nil }).SetLimit(2).Start()
	waitFor(t, time.Second, func() bool { return !tmr.Running() })

	tmr.SetLimit(4).Start()
	waitFor(t, time.Second, func() bool { return !tmr.Running() })
	if tmr.Count() != 4 {
		t.Fatalf("count=%d want 4", tmr.Count())
	}
}
