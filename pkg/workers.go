package piconuclear

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

type workerJob struct {
	seq     int
	capture Capture
}

type workerResult struct {
	seq   int
	event CalibratedEvent
	err   error
}

func (r *Run) worker(id int, jobs <-chan workerJob, results chan<- workerResult) {
	for job := range jobs {
		if r.Config.Verbosity > 3 {
			logger.Info(fmt.Sprintf("worker %d processing capture %d", id, job.capture.Count), "workers")
		}
		event, err := r.process(job.capture)
		results <- workerResult{seq: job.seq, event: event, err: err}
	}
}

// sendCapturesToWorkers reads the source until it is exhausted, the
// capture or time limit is reached or ctx is cancelled.
func (r *Run) sendCapturesToWorkers(ctx context.Context, start time.Time, jobs chan<- workerJob) error {
	defer close(jobs)
	for seq := 0; r.Config.MaxEvents <= 0 || seq < r.Config.MaxEvents; seq++ {
		if ctx.Err() != nil {
			return nil
		}
		if r.Config.MaxTime > 0 && time.Since(start).Seconds() >= r.Config.MaxTime {
			return nil
		}
		capture, err := r.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("reading capture: %w", err)
		}
		select {
		case jobs <- workerJob{seq: seq, capture: capture}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// processWorkerResults puts results back in capture order before they are
// accounted, so a parallel run accumulates exactly what a sequential one
// would. Results arriving after a limit was reached are dropped.
func (r *Run) processWorkerResults(results <-chan workerResult, stop context.CancelFunc) error {
	pending := make(map[int]workerResult)
	next := 0
	stopped := false
	for res := range results {
		pending[res.seq] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if stopped {
				continue
			}
			r.Stats.Captures++
			if err := r.accept(ready.event, ready.err); err != nil {
				stop()
				return err
			}
			r.progress()
			if r.limitReached() {
				stopped = true
				stop()
			}
		}
	}
	return nil
}

func (r *Run) executeParallel(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan workerJob, r.Config.NumWorkers)
	results := make(chan workerResult, r.Config.NumWorkers)

	var wg sync.WaitGroup
	for w := 1; w <= r.Config.NumWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.worker(id, jobs, results)
		}(w)
	}

	readErr := make(chan error, 1)
	start := r.Stats.Start
	go func() {
		readErr <- r.sendCapturesToWorkers(ctx, start, jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	err := r.processWorkerResults(results, cancel)
	for range results {
	}
	if err != nil {
		return err
	}
	return <-readErr
}
