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

package server

import (
	"sync"

	"github.com/pipeforge/pipeforge/execstate"
)

// activeRuns tracks the Execution State of every root Runner currently
// driven in-process by an Exec session on this server,
// so a `/stop` request arriving on an unrelated HTTP connection can
// still reach it directly. Implements wsapi.ActiveRuns.
type activeRuns struct {
	mu     sync.Mutex
	states map[string]*execstate.ExecutionState
}

func newActiveRuns() *activeRuns {
	return &activeRuns{states: make(map[string]*execstate.ExecutionState)}
}

func (a *activeRuns) Register(runID string, state *execstate.ExecutionState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[runID] = state
}

func (a *activeRuns) Unregister(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, runID)
}

// RequestStop sets the stop flag on runID's in-process Execution State,
// if one is registered. Returns false when no in-process run matches,
// in which case the caller falls back to the Worker Queue's registry.
func (a *activeRuns) RequestStop(runID string) bool {
	a.mu.Lock()
	state, ok := a.states[runID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	state.RequestStop()
	return true
}
