// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package supervisor implements the Worker Queue and the
// Supervisor-side WebSocket sessions (C11): bounded admission of
// submitted runs to a fixed number of worker subprocess slots, the
// Ack/Completed/Stop protocol each worker speaks back to the
// supervisor, and a supplemented cron Scheduler feeding the same
// admission path a timed submitter would.
package supervisor

import (
	"log"
	"sync"
)

// Job is one admitted unit of work: a pipeline name plus the
// variable/environment overrides the worker subprocess's Runner will
// apply, keyed by the run id its Run Record was already created under.
type Job struct {
	RunID       string
	Pipeline    string
	Variables   map[string]string
	Environment map[string]string
}

// Dispatch spawns (or otherwise starts) the worker subprocess serving
// job. It must not block the Queue's mutex — Enqueue/Release invoke it
// after releasing their lock.
type Dispatch func(Job) error

// Queue is the bounded FIFO admission control in front of the worker
// slots, mutex-guarded exactly like core/pool.go's RunnerPool: a single
// lock serializes both the pending queue and the active set, and every
// operation is O(N) in the worst case.
type Queue struct {
	mu       sync.Mutex
	capacity int
	active   map[string]bool
	pending  []Job
	dispatch Dispatch
	logger   *log.Logger
}

// New builds a Queue admitting at most capacity concurrently active
// jobs, calling dispatch to actually start each admitted job.
func New(capacity int, dispatch Dispatch, logger *log.Logger) *Queue {
	return &Queue{
		capacity: capacity,
		active:   make(map[string]bool),
		dispatch: dispatch,
		logger:   logger,
	}
}

// Enqueue admits job immediately if a slot is free, dispatching it; otherwise
// it is appended to the pending FIFO for a later Release to pick up.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	if len(q.active) < q.capacity {
		q.active[job.RunID] = true
		q.mu.Unlock()
		return q.dispatch(job)
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	return nil
}

// Release frees the slot held by runID and, if any job is pending,
// admits and dispatches the oldest one in its place. Safe to call more
// than once for the same runID (e.g. once from a Completed message and
// once from the worker subprocess's own exit) — only the first call has
// an effect.
func (q *Queue) Release(runID string) {
	q.mu.Lock()
	if !q.active[runID] {
		q.mu.Unlock()
		return
	}
	delete(q.active, runID)

	var next Job
	var hasNext bool
	if len(q.pending) > 0 {
		next = q.pending[0]
		q.pending = q.pending[1:]
		q.active[next.RunID] = true
		hasNext = true
	}
	q.mu.Unlock()

	if hasNext {
		if err := q.dispatch(next); err != nil && q.logger != nil {
			q.logger.Printf("supervisor: dispatch %s: %v", next.RunID, err)
		}
	}
}

// ActiveCount reports the number of currently occupied worker slots,
// the value invariant 3 bounds by capacity.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// PendingCount reports the number of jobs waiting for a free slot.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
