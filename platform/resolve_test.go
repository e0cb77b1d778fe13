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
	"testing"

	"github.com/pipeforge/pipeforge/pipeline"
)

type fakeServers map[string]pipeline.PlatformSpec

func (f fakeServers) ServerByName(name string) (pipeline.PlatformSpec, bool) {
	s, ok := f[name]
	return s, ok
}

func TestResolveMachine(t *testing.T) {
	p, err := Resolve(context.Background(), pipeline.PlatformSpec{Kind: pipeline.PlatformMachine}, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := p.(*Machine); !ok {
		t.Fatalf("expected *Machine, got %T", p)
	}
}

func TestResolveSshRefUnknownServer(t *testing.T) {
	servers := fakeServers{}
	_, err := Resolve(context.Background(), pipeline.PlatformSpec{Kind: pipeline.PlatformSshRef, ServerName: "ci-box"}, servers)
	if err == nil {
		t.Fatal("expected error for unknown ssh_ref server")
	}
}

func TestResolveSshRefRejectsChainedRef(t *testing.T) {
	servers := fakeServers{
		"ci-box": pipeline.PlatformSpec{Kind: pipeline.PlatformSshRef, ServerName: "other"},
	}
	_, err := Resolve(context.Background(), pipeline.PlatformSpec{Kind: pipeline.PlatformSshRef, ServerName: "ci-box"}, servers)
	if err == nil {
		t.Fatal("expected error when ssh_ref resolves to another ssh_ref")
	}
}

func TestResolveUnsupportedKind(t *testing.T) {
	_, err := Resolve(context.Background(), pipeline.PlatformSpec{Kind: pipeline.PlatformKind("bogus")}, nil)
	if err == nil {
		t.Fatal("expected error for unsupported platform kind")
	}
	if _, ok := err.(ErrUnsupportedSpec); !ok {
		t.Fatalf("expected ErrUnsupportedSpec, got %T", err)
	}
}
