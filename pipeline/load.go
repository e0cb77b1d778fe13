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

package pipeline

import (
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Parse decodes raw pipeline YAML and classifies each External as
// server- or locally-resolved. It does not default a missing runs_on:
// an absent runs_on leaves Kind empty, passes Validate unchanged and
// later fails in platform.Resolve with ErrUnsupportedSpec. An
// unrecognized runs_on variant is rejected here, by
// PlatformSpec.UnmarshalYAML.
func Parse(raw []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "pipeline: malformed yaml")
	}
	for i := range p.External {
		if p.External[i].IsServer() {
			p.External[i].Kind = ExternalServer
		} else {
			p.External[i].Kind = ExternalLocal
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate enforces the structural invariants Parse cannot express via
// yaml tags alone: every artifact naming an `after` stage must refer to
// a real step, and every step's external reference must name a
// pipeline-level External.
func (p *Pipeline) Validate() error {
	steps := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.Name != "" {
			steps[s.Name] = true
		}
	}
	for _, a := range p.Artifacts {
		if a.After != "" && !steps[a.After] {
			return errors.Errorf("pipeline: artifact after=%q does not name a step", a.After)
		}
	}
	externals := make(map[string]bool, len(p.External))
	for _, e := range p.External {
		externals[e.Name] = true
	}
	for _, s := range p.Steps {
		for _, ext := range s.External {
			if !externals[ext] {
				return errors.Errorf("pipeline: step %q references unknown external %q", s.Name, ext)
			}
		}
	}
	return nil
}

// ArtifactsAfter filters artifacts scheduled for the given stage name; an
// empty stage selects the pre-run artifacts.
func (p *Pipeline) ArtifactsAfter(stage string) []Artifact {
	var out []Artifact
	for _, a := range p.Artifacts {
		if a.After == stage {
			out = append(out, a)
		}
	}
	return out
}

// ExternalByName looks up a pipeline-level External reference by name.
func (p *Pipeline) ExternalByName(name string) (External, bool) {
	for _, e := range p.External {
		if e.Name == name {
			return e, true
		}
	}
	return External{}, false
}
