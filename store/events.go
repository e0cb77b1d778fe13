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
	"fmt"

	"github.com/pipeforge/pipeforge/runner"
)

// RunRecordSink implements runner.ContextSender by translating a
// Runner's lifecycle events directly into Run Record state transitions,
// keeping the persisted table in step with the in-memory Execution
// State without the caller having to duplicate that mapping at every
// call site (wsapi's Exec session and the worker subprocess both
// construct one of these).
type RunRecordSink struct {
	Store *Store
}

// Publish maps a started/finished/faulted event to the corresponding
// SetRunState call; any other event kind (e.g. "step") is ignored, it
// having no Run Record counterpart.
func (s RunRecordSink) Publish(ev runner.Event) error {
	var state RunState
	switch ev.Kind {
	case "started":
		state = RunRunning
	case "finished":
		state = RunFinished
	case "faulted":
		state = RunFaulted
	default:
		return nil
	}
	if err := s.Store.SetRunState(context.Background(), ev.RunID, state); err != nil {
		return fmt.Errorf("store: publish %s event: %w", ev.Kind, err)
	}
	return nil
}
