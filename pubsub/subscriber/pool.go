package subscriber

import (
	"context"
	"sync/atomic"
)

type job func()

// pool runs jobs on a fixed number of goroutines. Submission blocks until a
// worker is free, so the subscriber never pulls more packages off the broker
// than it can process.
type pool struct {
	size     uint
	jobs     chan job
	inFlight int32
}

func newPool(size uint) *pool {
	return &pool{size: size, jobs: make(chan job)}
}

func (p *pool) start(ctx context.Context) {
	for i := uint(0); i < p.size; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case j, open := <-p.jobs:
					if !open {
						return
					}

					j()
					atomic.AddInt32(&p.inFlight, -1)
				}
			}
		}()
	}
}

// submit hands the job to a worker. It returns false when ctx was canceled
// before any worker became free.
func (p *pool) submit(ctx context.Context, j job) bool {
	// counted on submission, not on pickup, so busy() already covers a job
	// that was accepted but not started yet
	atomic.AddInt32(&p.inFlight, 1)

	select {
	case p.jobs <- j:
		return true
	case <-ctx.Done():
		atomic.AddInt32(&p.inFlight, -1)
		return false
	}
}

// busy returns the number of accepted jobs that did not finish yet.
func (p *pool) busy() int {
	return int(atomic.LoadInt32(&p.inFlight))
}
