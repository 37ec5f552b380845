package store

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned when a task is submitted after Close.
var ErrQueueClosed = errors.New("write queue closed")

// writeQueue runs fragment disk work on a single goroutine: the
// producer thread enqueues and returns, the worker does the writing.
// The serial order is load-bearing, not an implementation convenience:
// Clear's storage reset executes behind every write it vetoed, and a
// removed fragment's blob delete cannot race a later write to the same
// blob name.
//
// Occupancy is bounded by the in-flight gate (at most one queued write
// per fragment id), not by the channel: the buffer only has to absorb
// bursts.
type writeQueue struct {
	workCh   chan func()
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	submitMu sync.RWMutex
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{
		workCh: make(chan func(), 1024),
		stopCh: make(chan struct{}),
	}

	q.wg.Add(1)
	go q.worker()

	return q
}

func (q *writeQueue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			// Drain remaining work before exiting.
			for {
				select {
				case task, ok := <-q.workCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-q.workCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// submit enqueues a task and returns immediately.
func (q *writeQueue) submit(task func()) error {
	q.submitMu.RLock()
	defer q.submitMu.RUnlock()

	if q.closed.Load() {
		return ErrQueueClosed
	}

	select {
	case q.workCh <- task:
		return nil
	case <-q.stopCh:
		return ErrQueueClosed
	}
}

// close shuts the queue down, running all already-queued tasks first.
func (q *writeQueue) close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}

	q.submitMu.Lock()
	close(q.stopCh)
	close(q.workCh)
	q.submitMu.Unlock()

	q.wg.Wait()
}
