// Package persist runs persistence work off the event path while keeping
// the order in which it was submitted.
package persist

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"algoengine/internal/logger"
)

// ErrClosed is returned once the writer has been closed.
var ErrClosed = errors.New("persist writer closed")

const slowJobThreshold = 200 * time.Millisecond

// Job is a unit of persistence work. Name shows up in logs.
type Job struct {
	Name string
	Run  func(ctx context.Context) error

	done chan error
}

// Writer is a single-goroutine actor executing jobs FIFO. Failures are
// logged and swallowed; in-memory state stays authoritative.
type Writer struct {
	jobs    chan Job
	stopCh  chan struct{}
	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	onError func(job string, err error)
}

// NewWriter starts the actor. onError, when set, sees every failed job.
func NewWriter(queueSize int, onError func(job string, err error)) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		jobs:    make(chan Job, queueSize),
		stopCh:  make(chan struct{}),
		onError: onError,
	}
	w.wg.Add(1)
	go w.runLoop()
	return w
}

// Submit enqueues a job. It blocks while the queue is full.
func (w *Writer) Submit(name string, run func(ctx context.Context) error) error {
	if run == nil {
		return nil
	}
	return w.send(Job{Name: name, Run: run})
}

// Flush waits until every job submitted before the call has run.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	if err := w.send(Job{Name: "flush", Run: func(context.Context) error { return nil }, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) send(job Job) error {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		logger.Warnf("persist writer closed, dropping job %s", job.Name)
		return ErrClosed
	}
	w.jobs <- job
	return nil
}

// Close drains queued jobs and stops the actor.
func (w *Writer) Close() {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return
	}
	w.closed = true
	close(w.stopCh)
	w.closeMu.Unlock()
	w.wg.Wait()
}

func (w *Writer) runLoop() {
	defer w.wg.Done()
	for {
		select {
		case job := <-w.jobs:
			w.handle(job)
		case <-w.stopCh:
			for {
				select {
				case job := <-w.jobs:
					w.handle(job)
				default:
					logger.Debugf("persist writer stopped")
					return
				}
			}
		}
	}
}

func (w *Writer) handle(job Job) {
	var err error
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("persist job %s panic: %v\n%s", job.Name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			logger.Errorf("persist job %s failed: %v", job.Name, err)
			if w.onError != nil {
				w.onError(job.Name, err)
			}
		}
		if job.done != nil {
			job.done <- err
			close(job.done)
		}
		if dur := time.Since(start); dur > slowJobThreshold {
			logger.Warnf("slow persist job %s took %v", job.Name, dur)
		}
	}()
	err = job.Run(context.Background())
}
