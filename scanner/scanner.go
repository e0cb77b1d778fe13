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

// Package scanner follows a run's on-disk log file, delivering newly
// appended lines to a Monitor session without holding
// the file open across the whole run or re-reading bytes already sent.
package scanner

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Scanner tracks a byte offset into a log file and yields only the
// lines appended since its last read, the incremental-tail counterpart
// to runlog.Sink's append-only writer.
type Scanner struct {
	path   string
	offset int64
}

// New creates a Scanner positioned at the start of the file at path.
// The file need not exist yet; the first Poll call will simply return
// no lines until the Runner creates it.
func New(path string) *Scanner {
	return &Scanner{path: path}
}

// Poll reads every complete line appended since the last call and
// returns them, advancing the internal offset past the last newline
// found. A trailing partial line (no newline yet) is left unread so a
// future Poll can return it whole once the writer flushes the rest.
func (s *Scanner) Poll() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "scanner: open")
	}
	defer f.Close()

	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "scanner: seek")
	}

	r := bufio.NewReader(f)
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 && err == nil {
			lines = append(lines, line[:len(line)-1])
			s.offset += int64(len(line))
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return lines, errors.Wrap(err, "scanner: read")
		}
	}
	return lines, nil
}

// Offset reports the byte position the Scanner has consumed up to,
// useful for a Monitor session resuming after a reconnect.
func (s *Scanner) Offset() int64 { return s.offset }
