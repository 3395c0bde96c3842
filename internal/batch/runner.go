// Package batch dispatches many governed calls in parallel.
package batch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/j-veylop/llm-quota-governor/internal/governor"
)

// DefaultWorkers is the parallelism used when none is configured.
const DefaultWorkers = 8

// Doer runs one governed call. *governor.Governor implements it.
type Doer interface {
	Do(ctx context.Context, call governor.Call, fn governor.CallFunc) (governor.Response, error)
}

// Job is one call of a batch.
type Job struct {
	// ID identifies the job in progress reports. Empty IDs are generated.
	ID   string
	Fn   governor.CallFunc
	Call governor.Call
}

// Progress reports one finished job together with the running totals.
type Progress struct {
	Err       error
	JobID     string
	Response  governor.Response
	Completed int
	Failed    int
	Total     int
}

// Summary is the outcome of a whole batch.
type Summary struct {
	Succeeded int
	Failed    int
}

// Runner runs jobs through a governor with bounded parallelism.
type Runner struct {
	doer    Doer
	workers int
}

// New creates a runner. Non-positive workers use DefaultWorkers.
func New(doer Doer, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{doer: doer, workers: workers}
}

// Run starts the batch and returns its progress stream, which is closed once
// every job has finished. The stream is buffered for the whole batch, so a
// caller that stops reading does not leak workers. Jobs not yet started when
// ctx ends finish with ctx's error.
func (r *Runner) Run(ctx context.Context, jobs []Job) <-chan Progress {
	out := make(chan Progress, len(jobs))
	if len(jobs) == 0 {
		close(out)
		return out
	}

	var (
		mu        sync.Mutex
		completed int
		failed    int
	)
	report := func(job Job, resp governor.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if err != nil {
			failed++
		}
		out <- Progress{
			JobID:     job.ID,
			Response:  resp,
			Err:       err,
			Completed: completed,
			Failed:    failed,
			Total:     len(jobs),
		}
	}

	queue := make(chan Job)
	var wg sync.WaitGroup
	for range min(r.workers, len(jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if err := ctx.Err(); err != nil {
					report(job, governor.Response{}, err)
					continue
				}
				resp, err := r.doer.Do(ctx, job.Call, job.Fn)
				report(job, resp, err)
			}
		}()
	}

	go func() {
		for _, job := range jobs {
			if job.ID == "" {
				job.ID = uuid.NewString()
			}
			queue <- job
		}
		close(queue)
		wg.Wait()
		close(out)
	}()

	return out
}

// Wait drains a progress stream and summarizes it.
func Wait(progress <-chan Progress) Summary {
	var s Summary
	for p := range progress {
		if p.Err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}
