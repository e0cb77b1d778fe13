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
	"os/exec"
	"time"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/runlog"
)

// pollInterval bounds how often Shell checks the stop flag while a
// command runs, satisfying <=2s interruption target.
const pollInterval = 500 * time.Millisecond

// Machine runs commands directly on the local host, the simplest
// Platform variant.
type Machine struct{}

func NewMachine() *Machine { return &Machine{} }

func (m *Machine) Shell(ctx context.Context, workingDir, cmdline string, state *execstate.ExecutionState, out *runlog.Sink) error {
	return runPolled(ctx, "sh", []string{"-c", cmdline}, workingDir, nil, state, out)
}

func (m *Machine) Push(ctx context.Context, from, to string) error {
	return copyPath(ctx, from, to)
}

func (m *Machine) Get(ctx context.Context, from, to string) error {
	return copyPath(ctx, from, to)
}

func (m *Machine) Dispose(ctx context.Context, isChild bool) error { return nil }
func (m *Machine) KeepAlive(ctx context.Context) error             { return nil }

// runPolled starts cmd/args and polls state.StopRequested at
// pollInterval, killing the started process (not its process group) on
// a stop request rather than waiting for natural completion. Machine's
// Shell is its only caller; Ssh and Container run their own poll loops.
func runPolled(ctx context.Context, name string, args []string, dir string, env []string, state *execstate.ExecutionState, out *runlog.Sink) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if env != nil {
		cmd.Env = env
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- streamLines(stdout, out)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	for {
		select {
		case err := <-waitErr:
			<-done
			return err
		case <-ticker.C:
			if state != nil && state.StopRequested() {
				if cmd.Process != nil {
					cmd.Process.Kill()
				}
				<-waitErr
				<-done
				return errCancelled
			}
		}
	}
}
