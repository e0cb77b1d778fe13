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
	"database/sql"
	"fmt"
	"time"
)

// RunState mirrors execstate.State as the persisted string enum
//: the store never imports the runner/execstate packages
// to avoid a dependency cycle, so callers convert at the boundary.
type RunState string

const (
	RunQueued   RunState = "queued"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunFaulted  RunState = "faulted"
)

// RunRecord is the persisted row backing a single run.
type RunRecord struct {
	ID            string
	Name          string
	State         RunState
	StopRequested bool
	StartTime     time.Time
	EndTime       *time.Time
	User          string
	AppUser       string
}

// CreateRun inserts a new Run Record in the Queued state. The engine
// never deletes run records.
func (s *Store) CreateRun(ctx context.Context, r *RunRecord) error {
	if r.State == "" {
		r.State = RunQueued
	}
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, state, stop_requested, start_time, end_time, user, app_user)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, string(r.State), boolToInt(r.StopRequested), r.StartTime.Format(time.RFC3339),
		formatTimePtr(r.EndTime), nullableString(r.User), nullableString(r.AppUser))
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// SetRunState transitions a run's state and, for a terminal state,
// stamps end_time. Callers are responsible for only calling this along
// the monotonic queued -> running -> (finished|faulted) order; the
// store itself does not enforce it (the owning Runner does, by
// construction).
func (s *Store) SetRunState(ctx context.Context, id string, state RunState) error {
	var endTime interface{}
	if state == RunFinished || state == RunFaulted {
		endTime = time.Now().Format(time.RFC3339)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET state = ?, end_time = COALESCE(?, end_time) WHERE id = ?`, string(state), endTime, id)
	if err != nil {
		return fmt.Errorf("store: set run state: %w", err)
	}
	return mustAffectOne(res, "run", id)
}

// RequestStop marks a run's stop_requested flag; it is sticky and the
// store never clears it.
func (s *Store) RequestStop(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET stop_requested = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: request stop: %w", err)
	}
	return mustAffectOne(res, "run", id)
}

// GetRun retrieves a single run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, state, stop_requested, start_time, end_time, user, app_user
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// RunFilter narrows ListRuns; the zero value selects every run by
// name, most-recent first, an empty Name selecting all.
type RunFilter struct {
	Name  string
	State RunState
	Limit int
}

// ListRuns queries run records for `/hist` and `/inspect`,
// and for Monitor session resolution by last/name.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]*RunRecord, error) {
	query := `SELECT id, name, state, stop_requested, start_time, end_time, user, app_user FROM runs WHERE 1=1`
	var args []interface{}
	if f.Name != "" {
		query += " AND name = ?"
		args = append(args, f.Name)
	}
	if f.State != "" {
		query += " AND state = ?"
		args = append(args, string(f.State))
	}
	query += " ORDER BY start_time DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		r, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastRun resolves the most recently started run, the first precedence
// tier of a Monitor session's MonitInfo resolution.
func (s *Store) LastRun(ctx context.Context) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, state, stop_requested, start_time, end_time, user, app_user
		FROM runs ORDER BY start_time DESC, rowid DESC LIMIT 1
	`)
	return scanRun(row)
}

// LastRunByName resolves the most recent run of a named pipeline, the
// third precedence tier of MonitInfo resolution.
func (s *Store) LastRunByName(ctx context.Context, name string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, state, stop_requested, start_time, end_time, user, app_user
		FROM runs WHERE name = ? ORDER BY start_time DESC, rowid DESC LIMIT 1
	`, name)
	return scanRun(row)
}

// ReplaceRun upserts r verbatim, used only by the HA Coordinator's FSM
// when applying a replicated create/restore and by snapshot restore,
// where the full record (including state) arrives pre-computed rather
// than built up through CreateRun/SetRunState's own defaulting.
func (s *Store) ReplaceRun(ctx context.Context, r *RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, name, state, stop_requested, start_time, end_time, user, app_user)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, string(r.State), boolToInt(r.StopRequested), r.StartTime.Format(time.RFC3339),
		formatTimePtr(r.EndTime), nullableString(r.User), nullableString(r.AppUser))
	if err != nil {
		return fmt.Errorf("store: replace run: %w", err)
	}
	return nil
}

// ClearRuns deletes every run record, used only to reset local state
// before a Raft snapshot restore replaces it wholesale.
func (s *Store) ClearRuns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("store: clear runs: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	r, err := scanRunRows(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func scanRunRows(row rowScanner) (*RunRecord, error) {
	var r RunRecord
	var state string
	var stopReq int
	var startTime string
	var endTime, user, appUser sql.NullString

	if err := row.Scan(&r.ID, &r.Name, &state, &stopReq, &startTime, &endTime, &user, &appUser); err != nil {
		return nil, err
	}
	r.State = RunState(state)
	r.StopRequested = stopReq != 0
	r.StartTime, _ = time.Parse(time.RFC3339, startTime)
	if endTime.Valid {
		t, err := time.Parse(time.RFC3339, endTime.String)
		if err == nil {
			r.EndTime = &t
		}
	}
	r.User = user.String
	r.AppUser = appUser.String
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func mustAffectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: %s %q not found: %w", kind, id, ErrNotFound)
	}
	return nil
}
