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

// Package ha implements the HA Coordinator: a Raft
// group, built on hashicorp/raft, whose state machine is the run-record
// table. Every create/set-state/request-stop mutation is first
// replicated as a log entry and only applied to the local store once
// committed, giving the table linearizable writes through the leader.
package ha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/pipeforge/pipeforge/store"
)

// CommandKind enumerates the replicated run-record mutations.
type CommandKind string

const (
	CommandCreate      CommandKind = "create"
	CommandSetState    CommandKind = "set_state"
	CommandRequestStop CommandKind = "request_stop"
)

// Command is one replicated log entry's payload, JSON-encoded into
// raft.Log.Data by Coordinator.Apply* before calling raft.Raft.Apply.
type Command struct {
	Kind  CommandKind    `json:"kind"`
	RunID string         `json:"run_id"`
	Name  string         `json:"name,omitempty"`
	State store.RunState `json:"state,omitempty"`
}

// FSM adapts the run-record table to raft.FSM, applying committed
// Commands and snapshotting/restoring the whole table.
type FSM struct {
	store *store.Store
}

// NewFSM builds an FSM backed by st.
func NewFSM(st *store.Store) *FSM {
	return &FSM{store: st}
}

// Apply decodes and applies one committed log entry, returning an
// error (if any) as the raft apply-future's response value.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("ha: decode command: %w", err)
	}
	ctx := context.Background()
	switch cmd.Kind {
	case CommandCreate:
		return f.store.CreateRun(ctx, &store.RunRecord{ID: cmd.RunID, Name: cmd.Name})
	case CommandSetState:
		return f.store.SetRunState(ctx, cmd.RunID, cmd.State)
	case CommandRequestStop:
		return f.store.RequestStop(ctx, cmd.RunID)
	default:
		return fmt.Errorf("ha: unknown command kind %q", cmd.Kind)
	}
}

// Snapshot captures the entire run-record table as of this call,
// resolving open snapshot-protocol question: a JSON
// array of every row, full-table rather than incremental (acceptable
// since the table is small relative to a build engine's other state).
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	records, err := f.store.ListRuns(context.Background(), store.RunFilter{})
	if err != nil {
		return nil, fmt.Errorf("ha: snapshot: %w", err)
	}
	return &fsmSnapshot{records: records}, nil
}

// Restore replaces the local run-record table wholesale with the
// snapshot's contents, used when a lagging follower is caught up via
// InstallSnapshot rather than by replaying the full log.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var records []*store.RunRecord
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		return fmt.Errorf("ha: decode snapshot: %w", err)
	}
	ctx := context.Background()
	if err := f.store.ClearRuns(ctx); err != nil {
		return err
	}
	for _, r := range records {
		if err := f.store.ReplaceRun(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

type fsmSnapshot struct {
	records []*store.RunRecord
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.records); err != nil {
		sink.Cancel()
		return fmt.Errorf("ha: persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
