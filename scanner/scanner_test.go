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

package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPollMissingFileReturnsNoLines(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.log"))
	lines, err := s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected no lines, got %v", lines)
	}
}

func TestPollReturnsOnlyNewlyAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := New(path)

	first, err := s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(first, []string{"one", "two"}) {
		t.Errorf("got %v, want [one two]", first)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	f.WriteString("three\n")
	f.Close()

	second, err := s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(second, []string{"three"}) {
		t.Errorf("got %v, want [three]", second)
	}
}

func TestPollLeavesPartialLineForNextCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(path, []byte("whole\npartial"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := New(path)

	lines, err := s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"whole"}) {
		t.Errorf("got %v, want [whole]", lines)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	f.WriteString("-rest\n")
	f.Close()

	lines, err = s.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"partial-rest"}) {
		t.Errorf("got %v, want [partial-rest]", lines)
	}
}
