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

package supervisor

import (
	"sync"
	"time"

	"github.com/pipeforge/pipeforge/wsapi"
)

// registry tracks the worker subprocesses currently connected over
// /ws-worker/, keyed by run id. It is the supervisor-side half of the
// Ack/Completed/Stop protocol: Spawner.Dispatch registers an entry before
// starting the subprocess, the WebSocket handler records each Ack it
// receives, and the ack watchdog in spawn.go polls ackedAt to decide
// whether to kill a worker that never announced itself.
type registry struct {
	mu      sync.Mutex
	workers map[string]*workerEntry
}

type workerEntry struct {
	ackedAt time.Time
	acked   bool
	conn    workerConn
}

// workerConn is the subset of *websocket.Conn the registry needs,
// narrowed so tests can fake a connection without dialing a socket.
type workerConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

func newRegistry() *registry {
	return &registry{workers: make(map[string]*workerEntry)}
}

func (r *registry) register(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[runID] = &workerEntry{}
}

func (r *registry) attach(runID string, conn workerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.workers[runID]
	if !ok {
		e = &workerEntry{}
		r.workers[runID] = e
	}
	e.conn = conn
}

func (r *registry) ack(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.workers[runID]
	if !ok {
		e = &workerEntry{}
		r.workers[runID] = e
	}
	e.acked = true
	e.ackedAt = time.Now()
}

func (r *registry) acked(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.workers[runID]
	return ok && e.acked
}

// stop sends a WorkerStop message to runID's connection, if one is
// currently attached. Returns false if no live connection is known.
func (r *registry) stop(runID string) bool {
	r.mu.Lock()
	e, ok := r.workers[runID]
	r.mu.Unlock()
	if !ok || e.conn == nil {
		return false
	}
	return e.conn.WriteJSON(wsapi.WorkerMessage{Kind: wsapi.WorkerStop, RunID: runID}) == nil
}

func (r *registry) remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, runID)
}
