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

// PipelineRecord is a registry entry pointing at a named pipeline file
// held by the fileproxy.Proxy; the store never holds the YAML body
// itself, only the catalog used by `/list`, `/push`, `/remove`.
type PipelineRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// CreatePipeline registers a new pipeline name, used by `/push` the
// first time a given name is uploaded.
func (s *Store) CreatePipeline(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pipelines (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: create pipeline: %w", err)
	}
	return nil
}

// GetPipelineByName looks up a registry entry by name.
func (s *Store) GetPipelineByName(ctx context.Context, name string) (*PipelineRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM pipelines WHERE name = ?`, name)
	return scanPipeline(row)
}

// ListPipelines returns every registered pipeline, alphabetically, for
// the `/list` endpoint.
func (s *Store) ListPipelines(ctx context.Context) ([]*PipelineRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM pipelines ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list pipelines: %w", err)
	}
	defer rows.Close()

	var out []*PipelineRecord
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RemovePipeline deletes a registry entry by name; the caller is
// responsible for also removing the backing file via fileproxy.Proxy.
func (s *Store) RemovePipeline(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipelines WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("store: remove pipeline: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPipeline(row rowScanner) (*PipelineRecord, error) {
	var p PipelineRecord
	var createdAt string
	if err := row.Scan(&p.ID, &p.Name, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}
