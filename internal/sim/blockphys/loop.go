package blockphys

import (
	"context"
	"time"
)

type loopReq struct {
	fn   func()
	done chan struct{}
}

// Run drives StepSimulation at the configured cadence until ctx is done or
// Stop is called. Requests sent through Do run between ticks. On exit every
// body is killed.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tune.TickInterval())
	defer ticker.Stop()
	defer close(s.done)
	defer s.Shutdown()

	s.logf("running: tick=%s bodies=%d", s.tune.TickInterval(), len(s.bodies))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.reqs:
			req.fn()
			close(req.done)
		case <-ticker.C:
			s.StepSimulation()
		}
	}
}

func (s *Scheduler) Stop() { close(s.stop) }

// Do runs fn on the loop goroutine and waits for it to finish.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	req := loopReq{fn: fn, done: make(chan struct{})}
	select {
	case s.reqs <- req:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-s.done:
		// Run may exit with the request still queued.
		select {
		case <-req.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
