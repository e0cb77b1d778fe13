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

// Package fileproxy mediates reading, writing, listing and removing
// pipeline definitions, regardless of whether they live on
// the local filesystem, a git remote, a GitHub repository, or a
// server-managed store.
package fileproxy

import "github.com/pkg/errors"

// ErrNotFound is returned by Read/Remove when name has no matching
// pipeline definition.
var ErrNotFound = errors.New("fileproxy: pipeline not found")

// Proxy is the uniform interface the Runner's construction contract
// and the add/cat/init/remove CLI subcommands use to resolve a
// pipeline name to its raw YAML.
type Proxy interface {
	// Read returns the raw YAML content stored under name.
	Read(name string) ([]byte, error)

	// Write stores content under name, creating or overwriting it.
	Write(name string, content []byte) error

	// List returns every pipeline name currently stored.
	List() ([]string, error)

	// Remove deletes the pipeline stored under name.
	Remove(name string) error
}
