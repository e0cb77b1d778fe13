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

package platform

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/runlog"
)

func TestMachineShellCapturesOutput(t *testing.T) {
	m := NewMachine()
	out := runlog.NewMemory()
	state := execstate.New()

	err := m.Shell(context.Background(), "", "echo hello && echo world", state, out)
	if err != nil {
		t.Fatalf("Shell returned error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "hello") || !strings.Contains(got, "world") {
		t.Fatalf("expected both lines in output, got %q", got)
	}
}

func TestMachineShellNonZeroExit(t *testing.T) {
	m := NewMachine()
	out := runlog.NewMemory()
	state := execstate.New()

	err := m.Shell(context.Background(), "", "exit 3", state, out)
	if err == nil {
		t.Fatal("expected error for non-zero exit, got nil")
	}
}

func TestMachineShellStopRequestCancelsWithinBudget(t *testing.T) {
	m := NewMachine()
	out := runlog.NewMemory()
	state := execstate.New()

	done := make(chan error, 1)
	go func() {
		done <- m.Shell(context.Background(), "", "sleep 30", state, out)
	}()

	time.Sleep(50 * time.Millisecond)
	state.RequestStop()

	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Fatalf("expected cancellation error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Shell did not honor stop request within budget")
	}
}

func TestMachineDisposeAndKeepAliveAreNoops(t *testing.T) {
	m := NewMachine()
	if err := m.Dispose(context.Background(), false); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := m.KeepAlive(context.Background()); err != nil {
		t.Fatalf("KeepAlive: %v", err)
	}
}
