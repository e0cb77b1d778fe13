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

	"github.com/pkg/errors"

	"github.com/pipeforge/pipeforge/pipeline"
)

// ServerConfig resolves a named server from ssh_ref entries in the
// supervisor's configuration; SshRef defers its connection details to
// whichever server config carries the matching name.
type ServerConfig interface {
	ServerByName(name string) (pipeline.PlatformSpec, bool)
}

// Resolve builds the concrete Platform a pipeline's runs_on names.
// SshRef is resolved by looking the server name up in servers and
// recursing into the resolved spec (which must not itself be ssh_ref).
func Resolve(ctx context.Context, spec pipeline.PlatformSpec, servers ServerConfig) (Platform, error) {
	switch spec.Kind {
	case pipeline.PlatformMachine:
		return NewMachine(), nil
	case pipeline.PlatformContainer:
		return NewContainer(ctx, spec.Image, spec.Pull)
	case pipeline.PlatformBuild:
		return NewBuild(ctx, spec.Dockerfile, spec.Tag)
	case pipeline.PlatformSsh:
		return NewSsh(spec)
	case pipeline.PlatformSshRef:
		if servers == nil {
			return nil, errors.Errorf("platform: ssh_ref %q but no server config available", spec.ServerName)
		}
		resolved, ok := servers.ServerByName(spec.ServerName)
		if !ok {
			return nil, errors.Errorf("platform: unknown ssh_ref server %q", spec.ServerName)
		}
		if resolved.Kind == pipeline.PlatformSshRef {
			return nil, errors.Errorf("platform: ssh_ref %q resolves to another ssh_ref", spec.ServerName)
		}
		return Resolve(ctx, resolved, servers)
	}
	return nil, ErrUnsupportedSpec{Kind: spec.Kind}
}
