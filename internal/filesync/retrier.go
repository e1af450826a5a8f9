package filesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/remotesync/internal/timer"
	"github.com/rs/zerolog/log"
)

// Retrier resends a request every interval until Done is called or the
// attempt budget is spent.
type Retrier struct {
	t        *timer.Timer
	send     func() error
	attempts int
	sent     atomic.Int64

	done          chan struct{}
	exhausted     chan struct{}
	doneOnce      sync.Once
	exhaustedOnce sync.Once
}

func NewRetrier(interval time.Duration, attempts int, send func() error) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	r := &Retrier{
		send:      send,
		attempts:  attempts,
		done:      make(chan struct{}),
		exhausted: make(chan struct{}),
	}
	// attempts-1 resends plus one final tick that marks the budget spent
	r.t = timer.New(interval).SetHandler(r.tick).SetLimit(attempts)
	return r
}

// Start sends the first attempt and schedules the rest.
func (r *Retrier) Start() error {
	r.sent.Add(1)
	if err := r.send(); err != nil {
		return err
	}
	r.t.Start()
	return nil
}

func (r *Retrier) tick(...any) error {
	select {
	case <-r.done:
		return nil
	default:
	}
	if r.sent.Load() >= int64(r.attempts) {
		r.exhaustedOnce.Do(func() { close(r.exhausted) })
		return nil
	}
	n := r.sent.Add(1)
	log.Debug().Int64("attempt", n).Int("of", r.attempts).Msg("resending request")
	return r.send()
}

// Done stops further attempts. Idempotent.
func (r *Retrier) Done() {
	r.doneOnce.Do(func() { close(r.done) })
	r.t.Stop()
}

// Wait blocks until Done, exhaustion, or ctx ends.
func (r *Retrier) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-r.exhausted:
		select {
		case <-r.done:
			return nil
		default:
		}
		return ErrRetriesExhausted
	case <-ctx.Done():
		r.t.Stop()
		return ctx.Err()
	}
}

// Attempts is the number of sends made so far.
func (r *Retrier) Attempts() int {
	return int(r.sent.Load())
}

// Errors are the send failures recorded by the schedule.
func (r *Retrier) Errors() []error {
	return r.t.Exceptions()
}
