// Package timer runs a handler periodically with an optional call limit.
//
// Handler failures are collected, never propagated: one bad invocation does
// not stop the timer.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Unlimited disables the call limit.
const Unlimited = -1

// Handler is invoked on every fire with the arguments bound by SetHandler.
type Handler func(args ...any) error

// PanicError records a handler panic.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("timer: handler panic: %v", e.Value)
}

// Timer is a restartable periodic scheduler. It is safe for concurrent use.
// Handlers run on the timer goroutine and must not block for long; they may
// call Stop or SetLimit.
type Timer struct {
	mu       sync.Mutex
	interval time.Duration
	handler  Handler
	args     []any
	count    int
	limit    int
	running  bool
	errs     []error

	gen  uint64
	stop chan struct{}
}

// New returns an idle timer firing every interval once started.
func New(interval time.Duration) *Timer {
	return &Timer{
		interval: interval,
		limit:    Unlimited,
	}
}

// SetHandler replaces the handler and its bound arguments.
func (t *Timer) SetHandler(fn Handler, args ...any) *Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
	t.args = append([]any(nil), args...)
	return t
}

// SetLimit sets the maximum number of invocations. Unlimited (-1) removes
// the cap. The new limit applies from the next fire.
func (t *Timer) SetLimit(n int) *Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = n
	return t
}

// Start schedules the handler. It is a no-op when already running.
func (t *Timer) Start() *Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return t
	}
	if t.interval <= 0 {
		log.Warn().Dur("interval", t.interval).Msg("timer not started: interval must be positive")
		return t
	}
	t.running = true
	t.gen++
	t.stop = make(chan struct{})
	go t.loop(t.gen, t.stop)
	return t
}

// Stop cancels pending invocations. An invocation already in flight runs to
// completion.
func (t *Timer) Stop() *Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halt()
	return t
}

func (t *Timer) halt() {
	if !t.running {
		return
	}
	t.running = false
	t.gen++
	close(t.stop)
}

func (t *Timer) loop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.fire(gen) {
				return
			}
		}
	}
}

// fire runs one invocation and reports whether the loop should continue.
func (t *Timer) fire(gen uint64) bool {
	t.mu.Lock()
	if !t.running || t.gen != gen {
		t.mu.Unlock()
		return false
	}
	if t.limit >= 0 && t.count >= t.limit {
		t.halt()
		t.mu.Unlock()
		return false
	}
	t.count++
	fn, args := t.handler, t.args
	t.mu.Unlock()

	err := invoke(fn, args)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.errs = append(t.errs, err)
		log.Debug().Err(err).Int("count", t.count).Msg("timer handler failed")
	}
	if t.gen != gen {
		return false
	}
	if t.limit >= 0 && t.count >= t.limit {
		t.halt()
		return false
	}
	return true
}

func invoke(fn Handler, args []any) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn(args...)
}

// Exceptions returns the collected handler errors, oldest first.
func (t *Timer) Exceptions() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]error(nil), t.errs...)
}

func (t *Timer) ClearExceptions() *Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = nil
	return t
}

func (t *Timer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Timer) Limit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

func (t *Timer) Interval() time.Duration {
	return t.interval
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
