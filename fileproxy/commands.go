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

package fileproxy

import "github.com/pkg/errors"

// DefaultPipeline is the starter pipeline content Init writes, the Go
// starting point for a freshly initialized pipeline.
const DefaultPipeline = `name: default
runs_on: machine
steps:
  - name: hello
    commands:
      - echo hello from pipeforge
`

// ErrAlreadyExists is returned by Init/Add when name is already present
// and overwrite was not requested.
var ErrAlreadyExists = errors.New("fileproxy: pipeline already exists")

// Init writes DefaultPipeline under name if it doesn't already exist,
// the Go equivalent of bld's `init` subcommand.
func Init(p Proxy, name string) error {
	return Add(p, name, []byte(DefaultPipeline), false)
}

// Add stores content under name. With overwrite false, an existing
// pipeline of the same name is rejected rather than silently replaced.
func Add(p Proxy, name string, content []byte, overwrite bool) error {
	if !overwrite {
		if _, err := p.Read(name); err == nil {
			return ErrAlreadyExists
		}
	}
	return p.Write(name, content)
}

// Cat returns the resolved, token-unexpanded YAML for name, exactly as
// stored — token substitution (C5) happens at Runner construction, not
// here.
func Cat(p Proxy, name string) ([]byte, error) {
	return p.Read(name)
}

// Remove deletes the pipeline stored under name.
func Remove(p Proxy, name string) error {
	return p.Remove(name)
}
