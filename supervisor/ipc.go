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

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/pipeforge/pipeforge/runner"
	"github.com/pipeforge/pipeforge/wsapi"
)

// WorkerIPC is the worker-subprocess side of /ws-worker/: it dials the
// supervisor once at process start, sends an Ack identifying its run,
// and implements both runner.IPC (Completed, sent strictly after
// CLEANUP ) and runner.ContextSender (each event
// forwarded as a Progress note) over the same connection.
type WorkerIPC struct {
	RunID string

	mu   sync.Mutex
	conn *websocket.Conn
}

// DialWorkerIPC connects to the supervisor's /ws-worker/ endpoint at
// url and sends the initial Ack for runID.
func DialWorkerIPC(url, runID string) (*WorkerIPC, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "supervisor: dial worker channel")
	}
	w := &WorkerIPC{RunID: runID, conn: conn}
	if err := conn.WriteJSON(wsapi.WorkerMessage{Kind: wsapi.WorkerAck, RunID: runID}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "supervisor: send ack")
	}
	return w, nil
}

// Publish implements runner.ContextSender, relaying each lifecycle
// event as a Progress note; "completed"-shaped kinds are left to the
// explicit Completed call instead.
func (w *WorkerIPC) Publish(ev runner.Event) error {
	if ev.Kind == "finished" || ev.Kind == "faulted" {
		return nil
	}
	return w.send(wsapi.WorkerMessage{Kind: wsapi.WorkerProgress, RunID: ev.RunID, Note: ev.Kind + ": " + ev.Note})
}

// Completed implements runner.IPC.
func (w *WorkerIPC) Completed(runID string) error {
	defer w.Close()
	return w.send(wsapi.WorkerMessage{Kind: wsapi.WorkerCompleted, RunID: runID})
}

func (w *WorkerIPC) send(msg wsapi.WorkerMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	return w.conn.WriteJSON(msg)
}

// Close releases the underlying connection. Safe to call more than once.
func (w *WorkerIPC) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
