package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

// Dispatcher runs document processing in the background, at most concurrency runs
// at a time. Runs are detached from the request that triggered them.
type Dispatcher struct {
	processor ports.DocumentProcessor
	sem       *semaphore.Weighted
	timeout   time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(processor ports.DocumentProcessor, concurrency int, timeout time.Duration) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		processor: processor,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		timeout:   timeout,
		base:      base,
		cancel:    cancel,
	}
}

func (d *Dispatcher) Dispatch(documentID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.base, 1); err != nil {
			slog.Warn("document_dispatch_dropped", "document_id", documentID, "error", err)
			return
		}
		defer d.sem.Release(1)
		d.run(documentID)
	}()
}

func (d *Dispatcher) run(documentID string) {
	ctx, cancel := withOptionalTimeout(d.base, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("document_dispatch_panic", "document_id", documentID, "panic", r)
		}
	}()

	if err := d.processor.ProcessByID(ctx, documentID); err != nil {
		slog.Warn("document_dispatch_error", "document_id", documentID, "error", err)
	}
}

// Wait blocks until every dispatched run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight runs until ctx expires, then cancels them and waits
// for their failure writes.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
