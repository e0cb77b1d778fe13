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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/hashicorp/raft"

	"github.com/pipeforge/pipeforge/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "pipeforge.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func applyCommand(t *testing.T, fsm *FSM, cmd Command) interface{} {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	return fsm.Apply(&raft.Log{Data: data})
}

func TestFSMApplyCreateAndSetState(t *testing.T) {
	db := openTestStore(t)
	fsm := NewFSM(db)

	if res := applyCommand(t, fsm, Command{Kind: CommandCreate, RunID: "r1", Name: "build"}); res != nil {
		t.Fatalf("apply create: %v", res)
	}
	if res := applyCommand(t, fsm, Command{Kind: CommandSetState, RunID: "r1", State: store.RunRunning}); res != nil {
		t.Fatalf("apply set_state: %v", res)
	}

	rec, err := db.GetRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.State != store.RunRunning {
		t.Errorf("State = %s, want running", rec.State)
	}
}

func TestFSMApplyRequestStop(t *testing.T) {
	db := openTestStore(t)
	fsm := NewFSM(db)
	applyCommand(t, fsm, Command{Kind: CommandCreate, RunID: "r1", Name: "build"})
	if res := applyCommand(t, fsm, Command{Kind: CommandRequestStop, RunID: "r1"}); res != nil {
		t.Fatalf("apply request_stop: %v", res)
	}
	rec, err := db.GetRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !rec.StopRequested {
		t.Errorf("StopRequested = false, want true")
	}
}

func TestFSMApplyUnknownKindReturnsError(t *testing.T) {
	db := openTestStore(t)
	fsm := NewFSM(db)
	res := applyCommand(t, fsm, Command{Kind: "bogus", RunID: "r1"})
	if res == nil {
		t.Fatalf("expected an error for an unknown command kind")
	}
	if _, ok := res.(error); !ok {
		t.Fatalf("expected apply to return an error value, got %T", res)
	}
}

func TestFSMSnapshotAndRestoreRoundTrip(t *testing.T) {
	db := openTestStore(t)
	fsm := NewFSM(db)
	applyCommand(t, fsm, Command{Kind: CommandCreate, RunID: "r1", Name: "build"})
	applyCommand(t, fsm, Command{Kind: CommandCreate, RunID: "r2", Name: "test"})

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var buf bytes.Buffer
	sink := &memSink{Buffer: &buf}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	db2 := openTestStore(t)
	fsm2 := NewFSM(db2)
	if err := fsm2.Restore(io.NopCloser(&buf)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	rec, err := db2.GetRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRun after restore: %v", err)
	}
	if rec.Name != "build" {
		t.Errorf("Name = %s, want build", rec.Name)
	}
}

// memSink is a minimal raft.SnapshotSink over an in-memory buffer, for
// exercising FSM.Snapshot().Persist without a real SnapshotStore.
type memSink struct {
	*bytes.Buffer
}

func (m *memSink) ID() string    { return "test-snapshot" }
func (m *memSink) Cancel() error { return nil }
func (m *memSink) Close() error  { return nil }
