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

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/runlog"
)

// ServerExecClient opens the WebSocket side of a server external
// reference: dial the named server's /ws-exec/
// endpoint, send a RunInfo, and relay inbound log frames into out until
// the remote closes or state's stop flag trips. Implemented by the
// wsapi package; a Runner with none configured rejects server
// externals outright.
type ServerExecClient interface {
	RunServer(ctx context.Context, server, pipelineName string, variables, environment map[string]string, out *runlog.Sink, state *execstate.ExecutionState) error
}

// Event is a lifecycle or metrics notification published through a
// Context sender, e.g. to an AMQP exchange consumed by the HA
// Coordinator or an external metrics sink.
type Event struct {
	RunID string
	Kind  string // "started" | "finished" | "faulted"
	Note  string
}

// ContextSender is the side-channel a Runner publishes lifecycle events
// to, independent of the Logger's line-oriented output (
// construction contract "Context sender for HA/metrics side-channels").
type ContextSender interface {
	Publish(Event) error
}

// NoopContext discards every event; used when no side-channel is
// configured (a bare local `run` with no HA/metrics wiring).
type NoopContext struct{}

func (NoopContext) Publish(Event) error { return nil }

// IPC is the optional channel a worker-mode Runner reports lifecycle
// back to its supervisor on. A
// root Runner invoked directly by the server or the CLI has no IPC.
type IPC interface {
	Completed(runID string) error
}

// NoopIPC discards the Completed report; used by in-process (non-worker)
// Runners.
type NoopIPC struct{}

func (NoopIPC) Completed(string) error { return nil }
