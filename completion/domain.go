package completion

import (
	"context"
	"fmt"
)

// domain runs jobs one at a time on a goroutine of its own. Insertion
// simulation and template stepping for a resolution all happen in a single
// domain because the engines behind them are not reentrant.
type domain struct {
	jobs chan func()
	done chan struct{}
}

// newDomain starts a domain. exit, if non-nil, runs once the goroutine has
// finished its last job, even when the caller stopped waiting for it.
func newDomain(exit func()) *domain {
	d := &domain{jobs: make(chan func()), done: make(chan struct{})}
	go func() {
		defer close(d.done)
		if exit != nil {
			defer exit()
		}
		for job := range d.jobs {
			job()
		}
	}()
	return d
}

// run executes fn in the domain and waits for it. If ctx ends first run
// returns ctx.Err() and the job's result is discarded.
func (d *domain) run(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("panic: %v", r)
			}
		}()
		errc <- fn()
	}

	select {
	case d.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs. A job still running finishes in the
// background.
func (d *domain) close() {
	close(d.jobs)
}
