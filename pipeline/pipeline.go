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

// Package pipeline holds the parsed, immutable representation of a
// pipeline definition: the steps, artifacts, variables and external
// references a Runner executes.
package pipeline

// Pipeline is the parsed, immutable-per-run definition loaded from a
// pipeline YAML file.
type Pipeline struct {
	Name      string              `yaml:"name,omitempty"`
	RunsOn    PlatformSpec        `yaml:"runs_on"`
	Dispose   bool                `yaml:"dispose,omitempty"`
	Steps     []Step              `yaml:"steps,omitempty"`
	Artifacts []Artifact          `yaml:"artifacts,omitempty"`
	Variables []Variable          `yaml:"variables,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	External  []External         `yaml:"external,omitempty"`
}

// Step is a single unit of work within a Pipeline: an optional name, a
// set of shell commands, an optional working directory and a list of
// sub-pipeline references to run before the commands.
type Step struct {
	Name       string   `yaml:"name,omitempty"`
	Commands   []string `yaml:"commands,omitempty"`
	WorkingDir string   `yaml:"working_dir,omitempty"`
	External   []string `yaml:"external,omitempty"`
}

// ArtifactMethod is either a push (host -> platform) or a get
// (platform -> host) copy operation.
type ArtifactMethod string

const (
	ArtifactPush ArtifactMethod = "push"
	ArtifactGet  ArtifactMethod = "get"
)

// Artifact describes a file copy scheduled either before the run
// (After == "") or right after a named step completes.
type Artifact struct {
	Method       ArtifactMethod `yaml:"method"`
	From         string         `yaml:"from"`
	To           string         `yaml:"to"`
	After        string         `yaml:"after,omitempty"`
	IgnoreErrors bool           `yaml:"ignore_errors,omitempty"`
}

// IsPreRun reports whether the artifact runs before any step executes.
func (a Artifact) IsPreRun() bool {
	return a.After == ""
}

// Complete reports whether method, from and to are all present, the
// precondition for an artifact to execute at all.
func (a Artifact) Complete() bool {
	return a.Method != "" && a.From != "" && a.To != ""
}

// Variable is a pipeline-declared variable with an optional default,
// used when token substitution finds no caller-supplied override.
type Variable struct {
	Name         string `yaml:"name"`
	DefaultValue string `yaml:"default_value,omitempty"`
}

// DefaultsOf indexes a Pipeline's declared variable defaults by name.
func DefaultsOf(vars []Variable) map[string]string {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		out[v.Name] = v.DefaultValue
	}
	return out
}

// ExternalKind distinguishes a Local sub-pipeline reference from a
// Server one.
type ExternalKind string

const (
	ExternalLocal  ExternalKind = "local"
	ExternalServer ExternalKind = "server"
)

// External is a reference to a sub-pipeline, either executed in-process
// (Local) or by submitting it to a remote server over WebSocket
// (Server).
type External struct {
	Kind        ExternalKind      `yaml:"-"`
	Name        string            `yaml:"name"`
	Pipeline    string            `yaml:"pipeline"`
	Server      string            `yaml:"server,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

func (e External) IsServer() bool { return e.Server != "" }
