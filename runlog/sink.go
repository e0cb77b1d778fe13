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

// Package runlog implements the Logger Sink: an
// append-only, line-oriented destination for a run's observable output,
// safe for concurrent writers, backed by a file or held in memory.
package runlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink is a concurrency-safe line writer. Every call to Line serializes
// through a single mutex, matching : "line ordering reflects
// arrival order at the Logger, not wall-clock order of the originating
// commands."
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher interface{ Flush() error }
	closer  io.Closer
	extra   []io.Writer
}

// NewFile opens (creating if absent, appending if present) the file at
// path as the Sink's backing store, matching backend/runner.go's
// bufio.Writer idiom for writing the generated Dockerfile.
func NewFile(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	return &Sink{w: bw, flusher: bw, closer: f}, nil
}

// NewMemory creates an in-memory Sink, used for ephemeral child-pipeline
// runs or tests.
func NewMemory() *Sink {
	return &Sink{w: &memBuffer{}}
}

// Tee adds an additional writer every future Line call also writes to,
// used by the Exec session (C8) to fan a run's output out to disk and to
// the WebSocket simultaneously.
func (s *Sink) Tee(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = append(s.extra, w)
}

// Line appends a single line (no trailing newline expected in format)
// to the sink and any tee'd writers, flushing the primary writer so a
// concurrent File Scanner observes it promptly.
func (s *Sink) Line(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...) + "\n"
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, line)
	if s.flusher != nil {
		s.flusher.Flush()
	}
	for _, w := range s.extra {
		io.WriteString(w, line)
	}
}

// String returns the accumulated content of an in-memory Sink; it
// returns the empty string for a file-backed Sink.
func (s *Sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, ok := s.w.(*memBuffer); ok {
		return mb.String()
	}
	return ""
}

// Close flushes and releases the backing file, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flusher != nil {
		s.flusher.Flush()
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// memBuffer is a tiny io.Writer used by NewMemory; kept separate from
// bytes.Buffer so Sink.w's type doesn't need exporting for tests that
// only care about line delivery via Tee.
type memBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (m *memBuffer) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, p...)
	return len(p), nil
}

func (m *memBuffer) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data)
}
