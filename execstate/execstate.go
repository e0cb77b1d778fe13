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

// Package execstate implements the per-run Execution State shared
// between a Runner and external stop requests: an
// atomic stop flag readable lock-free, and a mutex-guarded lifecycle
// state mutated only by the owning Runner.
package execstate

import (
	"sync"
	"sync/atomic"
)

// State is the run's lifecycle phase, matching the Run Record's state
// column.
type State int

const (
	Queued State = iota
	Running
	Finished
	Faulted
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// ExecutionState is the single-writer, many-atomic-reader primitive
// design notes prescribe: only the owning Runner mutates
// state, while stop-requesters may only set the stop flag.
type ExecutionState struct {
	mu    sync.Mutex
	state State
	stop  int32
}

// New creates an ExecutionState in the Queued phase.
func New() *ExecutionState {
	return &ExecutionState{state: Queued}
}

// NewNoop creates an ExecutionState for Runner unit tests that don't
// care about state transitions.
func NewNoop() *ExecutionState {
	return New()
}

// Set transitions lifecycle state. Only the owning Runner should call
// this; it does not itself enforce the monotonic queued->running->
// (finished|faulted) order (the Runner's state machine does, by
// construction, since it only ever calls Set at the two points
// the run lifecycle names).
func (e *ExecutionState) Set(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Get reads the current lifecycle state.
func (e *ExecutionState) Get() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RequestStop sets the sticky stop flag. Safe to call concurrently with
// Runner execution and with itself; clearing it is not supported —
// once requested, a stop stays requested.
func (e *ExecutionState) RequestStop() {
	atomic.StoreInt32(&e.stop, 1)
}

// StopRequested is a lock-free read of the stop flag, safe to call from
// any goroutine at any time including mid-command.
func (e *ExecutionState) StopRequested() bool {
	return atomic.LoadInt32(&e.stop) == 1
}
