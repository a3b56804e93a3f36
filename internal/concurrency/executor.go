// File: internal/concurrency/executor.go
// Package concurrency implements a serialized background task executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor runs submitted tasks on a single background goroutine in FIFO
// order. It carries slow-path work that must not run on a pool worker; in
// this library that is the debug server's serve loop.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor owns one background goroutine draining a FIFO task queue.
type Executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue
	closed bool
	done   chan struct{}
}

// NewExecutor starts the background goroutine.
func NewExecutor() *Executor {
	e := &Executor{
		tasks: queue.New(),
		done:  make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Submit enqueues a task, returning ErrExecutorClosed after Close.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.tasks.Add(task)
	e.cond.Signal()
	return nil
}

// Close drains the pending queue, then stops the background goroutine and
// waits for it. Idempotent.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.tasks.Length() == 0 {
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(TaskFunc)
		e.mu.Unlock()
		e.execute(task)
	}
}

// execute runs one task, keeping the loop alive across panics.
func (e *Executor) execute(task TaskFunc) {
	defer func() { _ = recover() }()
	task()
}
