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

package fileproxy

import (
	"strings"
	"testing"
)

func TestInitWritesDefaultPipeline(t *testing.T) {
	l, _ := NewLocal(t.TempDir())
	if err := Init(l, "default"); err != nil {
		t.Errorf("Init: %v", err)
	}
	got, err := Cat(l, "default")
	if err != nil {
		t.Errorf("Cat: %v", err)
	}
	if !strings.Contains(string(got), "runs_on: machine") {
		t.Errorf("default pipeline missing expected content: %q", got)
	}
}

func TestInitRejectsExisting(t *testing.T) {
	l, _ := NewLocal(t.TempDir())
	Init(l, "default")
	if err := Init(l, "default"); err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAddOverwriteTrueReplacesContent(t *testing.T) {
	l, _ := NewLocal(t.TempDir())
	Add(l, "p", []byte("name: p\n"), false)
	if err := Add(l, "p", []byte("name: p2\n"), true); err != nil {
		t.Errorf("Add with overwrite: %v", err)
	}
	got, _ := Cat(l, "p")
	if string(got) != "name: p2\n" {
		t.Errorf("got %q, want overwritten content", got)
	}
}

func TestRemoveDelegatesToProxy(t *testing.T) {
	l, _ := NewLocal(t.TempDir())
	Add(l, "p", []byte("name: p\n"), false)
	if err := Remove(l, "p"); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if _, err := Cat(l, "p"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after Remove, got %v", err)
	}
}
