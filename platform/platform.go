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

// Package platform implements the uniform shell/push/get/dispose/
// keep-alive abstraction over Machine, Container, Build,
// Ssh and SshRef targets.
package platform

import (
	"context"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/pipeline"
	"github.com/pipeforge/pipeforge/runlog"
)

// Platform is the uniform interface a Runner drives regardless of the
// concrete target a pipeline's runs_on resolved to.
type Platform interface {
	// Shell runs cmd, optionally rooted at workingDir, polling state for
	// stop requests at intermediate points so a long-running command is
	// interrupted within bounded latency.
	Shell(ctx context.Context, workingDir, cmd string, state *execstate.ExecutionState, out *runlog.Sink) error

	// Push copies a host path into the target.
	Push(ctx context.Context, from, to string) error

	// Get copies a path out of the target onto the host.
	Get(ctx context.Context, from, to string) error

	// Dispose tears the platform down. isChild must be true when called
	// from a child (external) pipeline's CLEANUP stage, in which case
	// implementations must not destroy a platform instance shared with
	// (owned by) the parent.
	Dispose(ctx context.Context, isChild bool) error

	// KeepAlive is the counterpart to Dispose called when a pipeline's
	// dispose field is false.
	KeepAlive(ctx context.Context) error
}

// ErrUnsupportedSpec is returned by Resolve when a pipeline.PlatformSpec
// kind matches none of the supported variants.
type ErrUnsupportedSpec struct{ Kind pipeline.PlatformKind }

func (e ErrUnsupportedSpec) Error() string {
	return "platform: unsupported spec kind " + string(e.Kind)
}
