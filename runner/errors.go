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
	"github.com/pkg/errors"

	"github.com/pipeforge/pipeforge/platform"
)

// ErrCancelled is the Runner-level cancellation sentinel: a stop request
// observed at a step boundary rather than surfaced by the Platform
// itself.
var ErrCancelled = errors.New("runner: run cancelled by stop request")

// IsCancelled reports whether err is a cancellation, whether raised by
// the Runner's own stop-signal check or by the underlying Platform.
func IsCancelled(err error) bool {
	return errors.Cause(err) == ErrCancelled || platform.IsCancelled(err)
}

// combineErrors merges an execution-phase error with a CLEANUP error;
// either alone is sufficient to fault the run.
func combineErrors(runErr, cleanupErr error) error {
	switch {
	case runErr == nil:
		return cleanupErr
	case cleanupErr == nil:
		return runErr
	default:
		return errors.Wrapf(runErr, "cleanup also failed: %v", cleanupErr)
	}
}
