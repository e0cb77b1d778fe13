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

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const pipelineExt = ".yaml"

// Local stores pipeline definitions as files under a single root
// directory, one file per pipeline named <name>.yaml. This is the
// backend both a local CLI and a server's own managed store use when
// no git/GitHub remote is configured.
type Local struct {
	root string
}

// NewLocal creates (if absent) root and returns a Local proxy rooted
// there.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: root}, nil
}

func (l *Local) path(name string) string {
	return filepath.Join(l.root, name+pipelineExt)
}

func (l *Local) Read(name string) ([]byte, error) {
	data, err := ioutil.ReadFile(l.path(name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (l *Local) Write(name string, content []byte) error {
	return ioutil.WriteFile(l.path(name), content, 0o644)
}

func (l *Local) List() ([]string, error) {
	entries, err := ioutil.ReadDir(l.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pipelineExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), pipelineExt))
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) Remove(name string) error {
	err := os.Remove(l.path(name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
