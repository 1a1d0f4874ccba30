// Package workers provides a bounded worker pool for fanning out
// external-call-heavy work. Backpressure comes purely from pool saturation:
// the pool size is fixed and independent of task count.
package workers

import (
	"context"
	"sync"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 5

// Pool manages a fixed number of worker goroutines.
type Pool struct {
	numWorkers int
}

// NewPool creates a new worker pool with the specified number of workers.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &Pool{numWorkers: numWorkers}
}

// Size returns the configured worker count.
func (p *Pool) Size() int {
	return p.numWorkers
}

// Execute runs all tasks through the pool and blocks until every started
// task has finished. Tasks capture their own results.
//
// Cancellation is cooperative: when ctx is cancelled, in-flight tasks are
// allowed to finish but no further task is started.
//
// onComplete, if non-nil, is called after each task completes with the number
// of completed tasks and the total. Calls are serialized; results therefore
// arrive in completion order, not submission order.
func (p *Pool) Execute(ctx context.Context, tasks []func(), onComplete func(done, total int)) {
	total := len(tasks)
	if total == 0 {
		return
	}

	jobs := make(chan func(), total)
	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	numWorkers := p.numWorkers
	if total < numWorkers {
		numWorkers = total
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-jobs:
					if !ok {
						return
					}
					task()

					mu.Lock()
					done++
					if onComplete != nil {
						onComplete(done, total)
					}
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
}
