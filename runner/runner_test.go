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

package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/runlog"
)

func newProxy(t *testing.T) *fileproxy.Local {
	t.Helper()
	l, err := fileproxy.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func build(t *testing.T, proxy fileproxy.Proxy, name string, vars map[string]string) (*Runner, *runlog.Sink, *execstate.ExecutionState) {
	t.Helper()
	out := runlog.NewMemory()
	state := execstate.New()
	r, err := Builder{
		RunID:        "run-1",
		RunStartTime: time.Now(),
		Proxy:        proxy,
		PipelineName: name,
		State:        state,
		Logger:       out,
		Variables:    vars,
	}.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r, out, state
}

// local run, single step.
func TestLocalRunSingleStep(t *testing.T) {
	proxy := newProxy(t)
	proxy.Write("hello", []byte(`
name: hello
runs_on: machine
steps:
  - name: s1
    commands:
      - echo hi
`))

	r, out, state := build(t, proxy, "hello", nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Pipeline: hello", "Runs on: machine", "Step: s1", "hi"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got %q", want, got)
		}
	}
	if state.Get() != execstate.Finished {
		t.Errorf("got state %v, want Finished", state.Get())
	}
}

// variable substitution, caller override beats pipeline default.
func TestVariableSubstitutionOverridesDefault(t *testing.T) {
	proxy := newProxy(t)
	proxy.Write("hi", []byte(`
name: hi
runs_on: machine
variables:
  - name: who
    default_value: world
steps:
  - name: s1
    commands:
      - echo ${{variable:who}}
`))

	r, out, _ := build(t, proxy, "hi", map[string]string{"who": "earth"})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "earth") {
		t.Errorf("expected override value earth in output, got %q", out.String())
	}

	r2, out2, _ := build(t, proxy, "hi", nil)
	if err := r2.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out2.String(), "world") {
		t.Errorf("expected default value world in output, got %q", out2.String())
	}
}

// a non-zero exit faults the run and skips subsequent steps.
func TestFaultPropagatesAndSkipsRemainingSteps(t *testing.T) {
	proxy := newProxy(t)
	proxy.Write("faulty", []byte(`
name: faulty
runs_on: machine
steps:
  - name: s1
    commands:
      - exit 2
  - name: s2
    commands:
      - echo should-not-run
`))

	r, out, state := build(t, proxy, "faulty", nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected Run to return an error")
	}
	if state.Get() != execstate.Faulted {
		t.Errorf("got state %v, want Faulted", state.Get())
	}
	if strings.Contains(out.String(), "should-not-run") {
		t.Error("step s2 ran after s1 faulted")
	}
}

// sub-pipeline composition: child output interleaves into the
// shared Logger before the parent step completes, and a child fault
// faults the parent.
func TestSubPipelineComposition(t *testing.T) {
	proxy := newProxy(t)
	proxy.Write("sub", []byte(`
name: sub
runs_on: machine
steps:
  - name: only
    commands:
      - echo child-line
`))
	proxy.Write("parent", []byte(`
name: parent
runs_on: machine
external:
  - name: sub
    pipeline: sub
steps:
  - name: s1
    external: [sub]
    commands:
      - echo parent-line
`))

	r, out, state := build(t, proxy, "parent", nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	childIdx := strings.Index(got, "child-line")
	parentIdx := strings.Index(got, "parent-line")
	if childIdx == -1 || parentIdx == -1 || childIdx > parentIdx {
		t.Errorf("expected child-line before parent-line, got %q", got)
	}
	if state.Get() != execstate.Finished {
		t.Errorf("got state %v, want Finished", state.Get())
	}

	proxy.Write("sub", []byte(`
name: sub
runs_on: machine
steps:
  - name: only
    commands:
      - exit 1
`))
	r2, _, state2 := build(t, proxy, "parent", nil)
	if err := r2.Run(context.Background()); err == nil {
		t.Fatal("expected parent to fault when sub-pipeline faults")
	}
	if state2.Get() != execstate.Faulted {
		t.Errorf("got state %v, want Faulted", state2.Get())
	}
}

// a stop request during a long-running command faults the run
// within bounded latency.
func TestStopDuringLongCommand(t *testing.T) {
	proxy := newProxy(t)
	proxy.Write("slow", []byte(`
name: slow
runs_on: machine
steps:
  - name: s1
    commands:
      - sleep 30
`))

	r, _, state := build(t, proxy, "slow", nil)
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	state.RequestStop()

	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Fatalf("expected cancellation error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not honor stop request within budget")
	}
	if state.Get() != execstate.Faulted {
		t.Errorf("got state %v, want Faulted after cancellation", state.Get())
	}
}
