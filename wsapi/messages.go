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

// Package wsapi implements the engine's WebSocket control-message
// sessions: the Exec session a submitting client opens
// to run a pipeline and stream its log, the Monitor session a viewer
// opens to watch an already-running (or finished) run, and the
// message types the Worker/Supervisor channel frames as JSON.
package wsapi

import "time"

// RunInfo is the single control frame an Exec session expects
// immediately after connecting.
type RunInfo struct {
	Pipeline    string            `json:"pipeline"`
	Server      string            `json:"server,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// MonitInfo resolves a Monitor session to a run record by last, id, or
// name, in that precedence.
type MonitInfo struct {
	Last bool   `json:"last,omitempty"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// WorkerMessageKind enumerates the Worker/Supervisor channel's control
// vocabulary.
type WorkerMessageKind string

const (
	// WorkerAck is the first frame a worker sends after connecting,
	// identifying the run it was spawned for.
	WorkerAck WorkerMessageKind = "ack"
	// WorkerWhoAmI names a supervisor request for a worker to
	// (re-)identify itself. Neither WorkerServer nor WorkerIPC sends or
	// handles it.
	WorkerWhoAmI WorkerMessageKind = "who_am_i"
	// WorkerCompleted reports that the worker's Runner has finished,
	// successfully or not ("Completed IPC is sent
	// strictly after CLEANUP").
	WorkerCompleted WorkerMessageKind = "completed"
	// WorkerProgress carries a free-form progress note, forwarded
	// from the Runner's ContextSender.
	WorkerProgress WorkerMessageKind = "progress"
	// WorkerStop is sent supervisor -> worker to request a stop.
	WorkerStop WorkerMessageKind = "stop"
)

// WorkerMessage is the JSON envelope every frame on /ws-worker/ carries.
type WorkerMessage struct {
	Kind  WorkerMessageKind `json:"kind"`
	RunID string            `json:"run_id"`
	Note  string            `json:"note,omitempty"`
	SentAt time.Time        `json:"sent_at,omitempty"`
}
