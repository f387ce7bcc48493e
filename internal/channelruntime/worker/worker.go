// Package worker runs one sequential job queue per key on top of a shared
// concurrency semaphore.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type StartOptions[J any] struct {
	Ctx    context.Context
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)

	// Logger receives recovered handler panics; nil uses slog.Default.
	Logger *slog.Logger
	// WG, when set, tracks the worker goroutine until it exits.
	WG *sync.WaitGroup
}

func Start[J any](opts StartOptions[J]) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WG != nil {
		opts.WG.Add(1)
	}
	go func() {
		if opts.WG != nil {
			defer opts.WG.Done()
		}
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case job, ok := <-opts.Jobs:
				if !ok {
					return
				}
				select {
				case opts.Sem <- struct{}{}:
				case <-opts.Ctx.Done():
					return
				}
				func() {
					defer func() { <-opts.Sem }()
					defer func() {
						if r := recover(); r != nil {
							logger.Error("worker_job_panic",
								"panic", fmt.Sprint(r),
								"stack", string(debug.Stack()),
							)
						}
					}()
					opts.Handle(opts.Ctx, job)
				}()
			}
		}
	}()
}

func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}
