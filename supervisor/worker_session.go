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
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pipeforge/pipeforge/store"
	"github.com/pipeforge/pipeforge/wsapi"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WorkerServer handles the supervisor side of /ws-worker/: a worker
// subprocess dials in, sends an Ack identifying its run, then a stream
// of Progress/Completed frames as its Runner proceeds. Completed
// always releases the run's Queue slot, whether or
// not an explicit Ack was ever observed, so a misbehaving worker never
// wedges the admission queue permanently — the ack watchdog in
// spawn.go handles that case instead.
type WorkerServer struct {
	Queue    *Queue
	Store    *store.Store
	Registry *registry
	Logger   *log.Logger
}

func (w *WorkerServer) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var runID string
	for {
		var msg wsapi.WorkerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if runID != "" {
				w.Queue.Release(runID)
			}
			return
		}
		switch msg.Kind {
		case wsapi.WorkerAck:
			runID = msg.RunID
			w.Registry.attach(runID, conn)
			w.Registry.ack(runID)
		case wsapi.WorkerProgress:
			if w.Logger != nil {
				w.Logger.Printf("supervisor: %s: %s", msg.RunID, msg.Note)
			}
		case wsapi.WorkerCompleted:
			w.Registry.remove(msg.RunID)
			w.Queue.Release(msg.RunID)
			return
		}
	}
}
