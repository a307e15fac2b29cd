// Package concurrent is a small generic worker pool used to fan out
// the per-point candidate searches (gateway lookups) across db_threads
// workers (spec.md §5). Grounded on
// the job-item shapes in pkg/concurrent/job_item.go (typed Job[T],
// JobFunc[T, G]); that package's pool implementation itself was not
// present in the retrieved pack, so the pool below is written fresh in
// the same idiom, generalized from the teacher's closed JobI type
// union to an unconstrained type parameter since this domain has no
// fixed job-item catalogue.
package concurrent

import "sync"

// Job pairs a unit of work with its position in the caller's input
// slice, so JobFunc results can be written back in order regardless of
// completion order.
type Job[T any] struct {
	ID      int
	JobItem T
}

// JobFunc computes a result for a single job. It must be safe to call
// concurrently from multiple workers.
type JobFunc[T any, G any] func(job T) G

// WorkerPool runs a JobFunc over a stream of jobs using a fixed number
// of worker goroutines, then returns results ordered by Job.ID.
type WorkerPool[T any, G any] struct {
	workers int
	fn      JobFunc[T, G]

	jobs    chan Job[T]
	results []G
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool of the given size (clamped to at least
// 1) that applies fn to each submitted job.
func NewWorkerPool[T any, G any](workers int, fn JobFunc[T, G]) *WorkerPool[T, G] {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool[T, G]{
		workers: workers,
		fn:      fn,
		jobs:    make(chan Job[T], workers*2),
	}
}

// Run submits every item in items as a job, processes them across the
// pool's workers, and returns results in the same order as items.
func (p *WorkerPool[T, G]) Run(items []T) []G {
	p.results = make([]G, len(items))

	p.wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		go p.worker()
	}

	for i, item := range items {
		p.jobs <- Job[T]{ID: i, JobItem: item}
	}
	close(p.jobs)

	p.wg.Wait()
	return p.results
}

func (p *WorkerPool[T, G]) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		result := p.fn(job.JobItem)
		p.mu.Lock()
		p.results[job.ID] = result
		p.mu.Unlock()
	}
}
