package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Options struct {
	Workers int

	// RateLimitRPS caps how often any worker may start an item. <=0 disables it.
	RateLimitRPS float64

	// FailFast decides whether an item error aborts the remaining items.
	// Nil keeps going on every error.
	FailFast func(error) bool
}

// Result holds the output for one input item. Index is the item's position
// in the input slice.
type Result[In any, Out any] struct {
	Index  int
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

// Run processes items on a bounded pool and returns one result per item in
// input order. onResult, if set, is called in completion order and never
// concurrently. When FailFast accepts an error the pool stops handing out
// items and Run returns that error together with the results gathered so far;
// items that never ran keep their zero Output and carry the context error.
func Run[In any, Out any](
	ctx context.Context,
	items []In,
	process func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]),
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))
	started := make([]bool, len(items))

	jobs := make(chan int)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if limiter != nil {
					if err := limiter.Wait(runCtx); err != nil {
						continue
					}
				}
				if runCtx.Err() != nil {
					continue
				}

				output, err := process(runCtx, items[idx])
				res := Result[In, Out]{Index: idx, Input: items[idx], Output: output, Err: err}

				mu.Lock()
				out[idx] = res
				started[idx] = true
				if onResult != nil {
					onResult(res)
				}
				mu.Unlock()

				if err != nil && opts.FailFast != nil && opts.FailFast(err) {
					fail(err)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range items {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	for i := range out {
		if !started[i] {
			err := runCtx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = Result[In, Out]{Index: i, Input: items[i], Err: err}
		}
	}

	if firstErr != nil {
		return out, firstErr
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
