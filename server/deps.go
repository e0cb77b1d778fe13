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
	"fmt"

	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/pipeline"
)

// DepEdge is one dependency edge a pipeline declares through a
// pipeline-level External reference (pipeline.go's External.Pipeline
// names exactly the dependency this graph walks).
type DepEdge struct {
	Name     string              `json:"name"`
	Pipeline string              `json:"pipeline"`
	Kind     pipeline.ExternalKind `json:"kind"`
	Server   string              `json:"server,omitempty"`
}

// resolveDeps loads name's pipeline definition and walks its External
// references transitively, the `GET /deps` endpoint's graph. A Server
// external is a leaf (remote composition has no local
// definition to recurse into); a Local external recurses unless name
// was already visited, which breaks a cycle rather than looping
// forever on a misdeclared pipeline.
func resolveDeps(p fileproxy.Proxy, name string) (map[string][]DepEdge, error) {
	out := make(map[string][]DepEdge)
	var walk func(string) error
	walk = func(n string) error {
		if _, seen := out[n]; seen {
			return nil
		}
		raw, err := p.Read(n)
		if err != nil {
			return fmt.Errorf("server: deps: resolve %q: %w", n, err)
		}
		pl, err := pipeline.Parse(raw)
		if err != nil {
			return fmt.Errorf("server: deps: parse %q: %w", n, err)
		}
		edges := make([]DepEdge, 0, len(pl.External))
		for _, e := range pl.External {
			edges = append(edges, DepEdge{Name: e.Name, Pipeline: e.Pipeline, Kind: e.Kind, Server: e.Server})
		}
		out[n] = edges
		for _, e := range edges {
			if e.Kind == pipeline.ExternalLocal {
				if err := walk(e.Pipeline); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(name); err != nil {
		return nil, err
	}
	return out, nil
}
