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

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeforge.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRunRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := uuid.NewString()
	if err := s.CreateRun(ctx, &RunRecord{ID: id, Name: "hello", User: "ops"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Name != "hello" || got.State != RunQueued || got.User != "ops" {
		t.Errorf("got %+v", got)
	}
	if got.StopRequested {
		t.Errorf("expected stop_requested false by default")
	}
	if got.EndTime != nil {
		t.Errorf("expected nil end_time for a queued run")
	}
}

func TestGetRunMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun(context.Background(), "absent"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSetRunStateStampsEndTimeOnlyForTerminalStates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id := uuid.NewString()
	if err := s.CreateRun(ctx, &RunRecord{ID: id, Name: "p"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.SetRunState(ctx, id, RunRunning); err != nil {
		t.Fatalf("SetRunState running: %v", err)
	}
	r, _ := s.GetRun(ctx, id)
	if r.State != RunRunning || r.EndTime != nil {
		t.Errorf("got state=%s endTime=%v, want running/nil", r.State, r.EndTime)
	}

	if err := s.SetRunState(ctx, id, RunFinished); err != nil {
		t.Fatalf("SetRunState finished: %v", err)
	}
	r, _ = s.GetRun(ctx, id)
	if r.State != RunFinished || r.EndTime == nil {
		t.Errorf("got state=%s endTime=%v, want finished/non-nil", r.State, r.EndTime)
	}
}

func TestSetRunStateUnknownIDReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetRunState(context.Background(), "nope", RunFinished); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound for unknown run id", err)
	}
}

func TestRequestStopIsSticky(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id := uuid.NewString()
	s.CreateRun(ctx, &RunRecord{ID: id, Name: "p"})

	if err := s.RequestStop(ctx, id); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	r, _ := s.GetRun(ctx, id)
	if !r.StopRequested {
		t.Errorf("expected stop_requested true")
	}

	s.SetRunState(ctx, id, RunFaulted)
	r, _ = s.GetRun(ctx, id)
	if !r.StopRequested {
		t.Errorf("stop_requested should remain set across a state transition")
	}
}

func TestListRunsFiltersByNameAndState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	s.CreateRun(ctx, &RunRecord{ID: uuid.NewString(), Name: "a", State: RunFinished})
	s.CreateRun(ctx, &RunRecord{ID: uuid.NewString(), Name: "a", State: RunFaulted})
	s.CreateRun(ctx, &RunRecord{ID: uuid.NewString(), Name: "b", State: RunFinished})

	byName, err := s.ListRuns(ctx, RunFilter{Name: "a"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(byName) != 2 {
		t.Errorf("got %d runs for name=a, want 2", len(byName))
	}

	byState, err := s.ListRuns(ctx, RunFilter{State: RunFinished})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(byState) != 2 {
		t.Errorf("got %d finished runs, want 2", len(byState))
	}
}

func TestLastRunByName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := uuid.NewString()
	s.CreateRun(ctx, &RunRecord{ID: first, Name: "hello"})
	second := uuid.NewString()
	s.CreateRun(ctx, &RunRecord{ID: second, Name: "hello"})

	last, err := s.LastRunByName(ctx, "hello")
	if err != nil {
		t.Fatalf("LastRunByName: %v", err)
	}
	if last.ID != second {
		t.Errorf("got %s, want most recently created run %s", last.ID, second)
	}
}

func TestPipelineRegistryRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.CreatePipeline(ctx, uuid.NewString(), "hello"); err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}
	got, err := s.GetPipelineByName(ctx, "hello")
	if err != nil {
		t.Fatalf("GetPipelineByName: %v", err)
	}
	if got.Name != "hello" {
		t.Errorf("got %+v", got)
	}

	list, err := s.ListPipelines(ctx)
	if err != nil {
		t.Fatalf("ListPipelines: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d pipelines, want 1", len(list))
	}

	if err := s.RemovePipeline(ctx, "hello"); err != nil {
		t.Fatalf("RemovePipeline: %v", err)
	}
	if _, err := s.GetPipelineByName(ctx, "hello"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound after removal", err)
	}
}

func TestReopenDoesNotRerunMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeforge.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.CreatePipeline(context.Background(), uuid.NewString(), "survivor"); err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetPipelineByName(context.Background(), "survivor")
	if err != nil {
		t.Fatalf("GetPipelineByName after reopen: %v", err)
	}
	if got.Name != "survivor" {
		t.Errorf("data did not survive reopen: %+v", got)
	}
}

func TestRaftLogStoreRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ls := s.LogStore()

	first, err := ls.FirstIndex()
	if err != nil || first != 0 {
		t.Fatalf("FirstIndex on empty store: %d, %v", first, err)
	}

	logs := []*raft.Log{
		{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte("a")},
		{Index: 2, Term: 1, Type: raft.LogCommand, Data: []byte("b")},
	}
	if err := ls.StoreLogs(logs); err != nil {
		t.Fatalf("StoreLogs: %v", err)
	}

	last, err := ls.LastIndex()
	if err != nil || last != 2 {
		t.Fatalf("LastIndex: %d, %v", last, err)
	}

	var out raft.Log
	if err := ls.GetLog(1, &out); err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	if string(out.Data) != "a" {
		t.Errorf("got %q, want a", out.Data)
	}

	if err := ls.DeleteRange(1, 1); err != nil {
		t.Fatalf("DeleteRange: %v", err)
	}
	if err := ls.GetLog(1, &out); err != raft.ErrLogNotFound {
		t.Errorf("got %v, want ErrLogNotFound", err)
	}
}

func TestRaftStableStoreRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ss := s.StableStore()

	if err := ss.SetUint64([]byte("CurrentTerm"), 7); err != nil {
		t.Fatalf("SetUint64: %v", err)
	}
	got, err := ss.GetUint64([]byte("CurrentTerm"))
	if err != nil || got != 7 {
		t.Fatalf("GetUint64: %d, %v", got, err)
	}

	if err := ss.Set([]byte("LastVoteCand"), []byte("node-1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, err := ss.Get([]byte("LastVoteCand"))
	if err != nil || string(raw) != "node-1" {
		t.Fatalf("Get: %q, %v", raw, err)
	}
}

func TestMembersRoundTrip(t *testing.T) {
	s := openTestStore(t)
	members := []Member{
		{NodeID: "n1", Address: "10.0.0.1:8300", Voter: true},
		{NodeID: "n2", Address: "10.0.0.2:8300", Voter: false},
	}
	if err := s.SetMembers(members); err != nil {
		t.Fatalf("SetMembers: %v", err)
	}
	got, err := s.Members()
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(got) != 2 || got[0].NodeID != "n1" || got[1].Voter {
		t.Errorf("got %+v", got)
	}
}
