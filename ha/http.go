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

package ha

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Status is the JSON body every /ha/* HTTP endpoint and the /ws-ha/
// channel report: enough for a client or peer to find the current
// leader and the last-applied index requires reads to
// carry.
type Status struct {
	NodeID    string `json:"node_id"`
	IsLeader  bool   `json:"is_leader"`
	Leader    string `json:"leader"`
	LastIndex uint64 `json:"last_index"`
}

func (c *Coordinator) status() Status {
	return Status{
		NodeID:    c.nodeID,
		IsLeader:  c.IsLeader(),
		Leader:    c.Leader(),
		LastIndex: c.LastIndex(),
	}
}

// StatusHandler serves the peer/client-facing view of Raft status. The
// actual AppendEntries/RequestVote/InstallSnapshot RPCs between peers
// travel over the TCP transport bound to ha_bind_address (the
// idiomatic hashicorp/raft wiring); this handler, mounted at
// /ha/append-entries, /ha/vote and /ha/install-snapshot, is the
// HTTP-observable status/redirect surface a
// client uses to find the leader before retrying a state-changing
// call there; the wire RPCs themselves travel over the raft.NetworkTransport
// TCP listener, not HTTP.
func (c *Coordinator) StatusHandler(w http.ResponseWriter, r *http.Request) {
	st := c.status()
	w.Header().Set("Content-Type", "application/json")
	if !st.IsLeader && st.Leader != "" {
		w.Header().Set("X-Raft-Leader", st.Leader)
	}
	json.NewEncoder(w).Encode(st)
}

var haUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler serves /ws-ha/: a long-lived channel pushing a Status
// frame on every leadership change plus a periodic keepalive, so a
// connected peer or operator tool observes leader transitions without
// polling the HTTP status endpoints.
func (c *Coordinator) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := haUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(c.status())

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	leaderCh := c.LeaderCh()
	for {
		select {
		case <-leaderCh:
			if conn.WriteJSON(c.status()) != nil {
				return
			}
		case <-ticker.C:
			if conn.WriteJSON(c.status()) != nil {
				return
			}
		}
	}
}
