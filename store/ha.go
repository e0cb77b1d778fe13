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
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/raft"
)

// RaftLogStore adapts the ha_log_entries table to raft.LogStore, the
// replicated log backing the HA Coordinator's run-record state machine
//. One LogStore is opened per node against that node's
// own database file; peers never share a file, only the replicated log.
type RaftLogStore struct {
	s *Store
}

// LogStore returns a raft.LogStore view over this Store's ha_log_entries table.
func (s *Store) LogStore() *RaftLogStore { return &RaftLogStore{s: s} }

func (l *RaftLogStore) FirstIndex() (uint64, error) {
	var idx sql.NullInt64
	err := l.s.db.QueryRow(`SELECT MIN(log_index) FROM ha_log_entries`).Scan(&idx)
	if err != nil || !idx.Valid {
		return 0, err
	}
	return uint64(idx.Int64), nil
}

func (l *RaftLogStore) LastIndex() (uint64, error) {
	var idx sql.NullInt64
	err := l.s.db.QueryRow(`SELECT MAX(log_index) FROM ha_log_entries`).Scan(&idx)
	if err != nil || !idx.Valid {
		return 0, err
	}
	return uint64(idx.Int64), nil
}

func (l *RaftLogStore) GetLog(index uint64, log *raft.Log) error {
	var term uint64
	var entryType int
	var data []byte
	row := l.s.db.QueryRow(`SELECT term, entry_type, data FROM ha_log_entries WHERE log_index = ?`, index)
	if err := row.Scan(&term, &entryType, &data); err != nil {
		if err == sql.ErrNoRows {
			return raft.ErrLogNotFound
		}
		return err
	}
	log.Index = index
	log.Term = term
	log.Type = raft.LogType(entryType)
	log.Data = data
	return nil
}

func (l *RaftLogStore) StoreLog(log *raft.Log) error {
	return l.StoreLogs([]*raft.Log{log})
}

func (l *RaftLogStore) StoreLogs(logs []*raft.Log) error {
	tx, err := l.s.db.Begin()
	if err != nil {
		return err
	}
	for _, log := range logs {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO ha_log_entries (log_index, term, entry_type, data) VALUES (?, ?, ?, ?)`,
			log.Index, log.Term, int(log.Type), log.Data); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (l *RaftLogStore) DeleteRange(min, max uint64) error {
	_, err := l.s.db.Exec(`DELETE FROM ha_log_entries WHERE log_index >= ? AND log_index <= ?`, min, max)
	return err
}

// RaftStableStore adapts the ha_kv table to raft.StableStore, holding
// the current term and vote record every node must persist durably
// before responding to a RequestVote RPC.
type RaftStableStore struct {
	s *Store
}

// StableStore returns a raft.StableStore view over this Store's ha_kv table.
func (s *Store) StableStore() *RaftStableStore { return &RaftStableStore{s: s} }

func (k *RaftStableStore) Set(key []byte, val []byte) error {
	_, err := k.s.db.Exec(`INSERT OR REPLACE INTO ha_kv (key, value) VALUES (?, ?)`, key, val)
	return err
}

func (k *RaftStableStore) Get(key []byte) ([]byte, error) {
	var val []byte
	err := k.s.db.QueryRow(`SELECT value FROM ha_kv WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: key not found")
	}
	return val, err
}

func (k *RaftStableStore) SetUint64(key []byte, val uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, val)
	return k.Set(key, buf)
}

func (k *RaftStableStore) GetUint64(key []byte) (uint64, error) {
	val, err := k.Get(key)
	if err != nil {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("store: malformed uint64 key")
	}
	return binary.BigEndian.Uint64(val), nil
}

// RaftSnapshotStore adapts the ha_snapshots table to raft.SnapshotStore.
// Snapshot bodies are buffered in memory during Create/Open since the
// run-record state machine's snapshot (a dump of the runs table) is
// small compared to the replicated log it truncates.
type RaftSnapshotStore struct {
	s *Store
}

// SnapshotStore returns a raft.SnapshotStore view over this Store's
// ha_snapshots table.
func (s *Store) SnapshotStore() *RaftSnapshotStore { return &RaftSnapshotStore{s: s} }

func (sn *RaftSnapshotStore) Create(version raft.SnapshotVersion, index, term uint64,
	configuration raft.Configuration, configurationIndex uint64, trans raft.Transport) (raft.SnapshotSink, error) {
	return &snapshotSink{
		store:   sn.s,
		id:      fmt.Sprintf("%d-%d-%d", term, index, time.Now().UnixNano()),
		index:   index,
		term:    term,
		confIdx: configurationIndex,
		conf:    raft.EncodeConfiguration(configuration),
	}, nil
}

func (sn *RaftSnapshotStore) List() ([]*raft.SnapshotMeta, error) {
	rows, err := sn.s.db.Query(`SELECT id, last_index, last_term, configuration, configuration_index, LENGTH(data)
		FROM ha_snapshots ORDER BY last_index DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*raft.SnapshotMeta
	for rows.Next() {
		var id string
		var index, term, confIndex uint64
		var conf []byte
		var size int64
		if err := rows.Scan(&id, &index, &term, &conf, &confIndex, &size); err != nil {
			return nil, err
		}
		out = append(out, &raft.SnapshotMeta{
			ID:                 id,
			Index:              index,
			Term:               term,
			Configuration:      raft.DecodeConfiguration(conf),
			ConfigurationIndex: confIndex,
			Size:               size,
			Version:            raft.SnapshotVersionMax,
		})
	}
	return out, rows.Err()
}

func (sn *RaftSnapshotStore) Open(id string) (*raft.SnapshotMeta, io.ReadCloser, error) {
	var index, term, confIndex uint64
	var conf, data []byte
	row := sn.s.db.QueryRow(`SELECT last_index, last_term, configuration, configuration_index, data
		FROM ha_snapshots WHERE id = ?`, id)
	if err := row.Scan(&index, &term, &conf, &confIndex, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	meta := &raft.SnapshotMeta{
		ID:                 id,
		Index:              index,
		Term:               term,
		Configuration:      raft.DecodeConfiguration(conf),
		ConfigurationIndex: confIndex,
		Size:               int64(len(data)),
		Version:            raft.SnapshotVersionMax,
	}
	return meta, io.NopCloser(bytes.NewReader(data)), nil
}

// snapshotSink buffers a snapshot's bytes until Close, then persists
// the row in one write; Cancel discards the buffer entirely.
type snapshotSink struct {
	store   *Store
	id      string
	index   uint64
	term    uint64
	confIdx uint64
	conf    []byte
	buf     bytes.Buffer
}

func (sink *snapshotSink) Write(p []byte) (int, error) { return sink.buf.Write(p) }

func (sink *snapshotSink) ID() string { return sink.id }

func (sink *snapshotSink) Cancel() error { return nil }

func (sink *snapshotSink) Close() error {
	_, err := sink.store.db.Exec(`
		INSERT INTO ha_snapshots (id, last_index, last_term, configuration, configuration_index, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sink.id, sink.index, sink.term, sink.conf, sink.confIdx, sink.buf.Bytes(), time.Now().Format(time.RFC3339))
	return err
}

// Member is one row of the ha_members cluster membership table. The HA
// Coordinator does not read this table; its peers come from the config.
type Member struct {
	NodeID  string
	Address string
	Voter   bool
}

// SetMembers replaces the membership table wholesale.
func (s *Store) SetMembers(members []Member) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM ha_members`); err != nil {
		tx.Rollback()
		return err
	}
	for _, m := range members {
		if _, err := tx.Exec(`INSERT INTO ha_members (node_id, address, voter) VALUES (?, ?, ?)`,
			m.NodeID, m.Address, boolToInt(m.Voter)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Members returns the rows of the membership table, ordered by node id.
func (s *Store) Members() ([]Member, error) {
	rows, err := s.db.Query(`SELECT node_id, address, voter FROM ha_members ORDER BY node_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var voter int
		if err := rows.Scan(&m.NodeID, &m.Address, &voter); err != nil {
			return nil, err
		}
		m.Voter = voter != 0
		out = append(out, m)
	}
	return out, rows.Err()
}
