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
	"fmt"
)

// PlatformKind tags the variant carried by a PlatformSpec.
type PlatformKind string

const (
	PlatformMachine   PlatformKind = "machine"
	PlatformContainer PlatformKind = "container"
	PlatformBuild     PlatformKind = "build"
	PlatformSsh       PlatformKind = "ssh"
	PlatformSshRef    PlatformKind = "ssh_ref"
)

// SshAuthKind tags the credential variant of an SSH platform.
type SshAuthKind string

const (
	SshAuthAgent    SshAuthKind = "agent"
	SshAuthKeys     SshAuthKind = "keys"
	SshAuthPassword SshAuthKind = "password"
)

// SshAuth is the tagged union of Agent / Keys / Password credentials
// a remote platform spec may carry.
type SshAuth struct {
	Kind       SshAuthKind
	PublicKey  string
	PrivateKey string
	Password   string
}

type sshAuthYaml struct {
	Agent    *struct{} `yaml:"agent,omitempty"`
	Keys     *struct {
		Public  string `yaml:"public,omitempty"`
		Private string `yaml:"private"`
	} `yaml:"keys,omitempty"`
	Password *struct {
		Password string `yaml:"password"`
	} `yaml:"password,omitempty"`
}

func (a *SshAuth) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw sshAuthYaml
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch {
	case raw.Agent != nil:
		a.Kind = SshAuthAgent
	case raw.Keys != nil:
		a.Kind = SshAuthKeys
		a.PublicKey = raw.Keys.Public
		a.PrivateKey = raw.Keys.Private
	case raw.Password != nil:
		a.Kind = SshAuthPassword
		a.Password = raw.Password.Password
	default:
		return fmt.Errorf("ssh auth: exactly one of agent, keys, password must be set")
	}
	return nil
}

// PlatformSpec is the tagged union of the five platform variants a
// pipeline's runs_on field may select.
type PlatformSpec struct {
	Kind PlatformKind

	// Container / Build
	Image      string
	Pull       bool
	BuildName  string
	Tag        string
	Dockerfile string

	// Ssh
	Host string
	Port int
	User string
	Auth SshAuth

	// SshRef
	ServerName string
}

type platformYaml struct {
	Machine   *struct{} `yaml:"machine,omitempty"`
	Container *struct {
		Image string `yaml:"image"`
		Pull  bool   `yaml:"pull,omitempty"`
	} `yaml:"container,omitempty"`
	Build *struct {
		Name       string `yaml:"name"`
		Tag        string `yaml:"tag,omitempty"`
		Dockerfile string `yaml:"dockerfile"`
	} `yaml:"build,omitempty"`
	Ssh *struct {
		Host string  `yaml:"host"`
		Port int     `yaml:"port,omitempty"`
		User string  `yaml:"user"`
		Auth SshAuth `yaml:"auth"`
	} `yaml:"ssh,omitempty"`
	SshRef *struct {
		ServerName string `yaml:"server_name"`
	} `yaml:"ssh_ref,omitempty"`
}

// UnmarshalYAML decodes either the bare scalar "machine" or one of the
// mapping-shaped variants (container/build/ssh/ssh_ref).
func (p *PlatformSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var scalar string
	if err := unmarshal(&scalar); err == nil {
		if scalar == string(PlatformMachine) {
			p.Kind = PlatformMachine
			return nil
		}
		return fmt.Errorf("runs_on: unknown scalar platform %q", scalar)
	}

	var raw platformYaml
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch {
	case raw.Machine != nil:
		p.Kind = PlatformMachine
	case raw.Container != nil:
		p.Kind = PlatformContainer
		p.Image = raw.Container.Image
		p.Pull = raw.Container.Pull
	case raw.Build != nil:
		p.Kind = PlatformBuild
		p.BuildName = raw.Build.Name
		p.Tag = raw.Build.Tag
		p.Dockerfile = raw.Build.Dockerfile
	case raw.Ssh != nil:
		p.Kind = PlatformSsh
		p.Host = raw.Ssh.Host
		p.Port = raw.Ssh.Port
		p.User = raw.Ssh.User
		p.Auth = raw.Ssh.Auth
	case raw.SshRef != nil:
		p.Kind = PlatformSshRef
		p.ServerName = raw.SshRef.ServerName
	default:
		return fmt.Errorf("runs_on: no recognized platform variant")
	}
	return nil
}

// MarshalYAML encodes a PlatformSpec in the shape UnmarshalYAML reads
// (the bare scalar for machine, a mapping for the others). The ssh
// variant's auth block is not emitted.
func (p PlatformSpec) MarshalYAML() (interface{}, error) {
	switch p.Kind {
	case PlatformMachine:
		return "machine", nil
	case PlatformContainer:
		return map[string]interface{}{
			"container": map[string]interface{}{"image": p.Image, "pull": p.Pull},
		}, nil
	case PlatformBuild:
		return map[string]interface{}{
			"build": map[string]interface{}{"name": p.BuildName, "tag": p.Tag, "dockerfile": p.Dockerfile},
		}, nil
	case PlatformSsh:
		return map[string]interface{}{
			"ssh": map[string]interface{}{"host": p.Host, "port": p.Port, "user": p.User},
		}, nil
	case PlatformSshRef:
		return map[string]interface{}{"ssh_ref": map[string]interface{}{"server_name": p.ServerName}}, nil
	}
	return nil, fmt.Errorf("platform: unknown kind %q", p.Kind)
}

// String renders a short human label, used by the Runner's INFO stage
// ("Runs on: <platform>").
func (p PlatformSpec) String() string {
	switch p.Kind {
	case PlatformMachine:
		return "machine"
	case PlatformContainer:
		return fmt.Sprintf("container(%s)", p.Image)
	case PlatformBuild:
		return fmt.Sprintf("build(%s:%s)", p.BuildName, p.Tag)
	case PlatformSsh:
		return fmt.Sprintf("ssh(%s@%s:%d)", p.User, p.Host, p.Port)
	case PlatformSshRef:
		return fmt.Sprintf("ssh_ref(%s)", p.ServerName)
	}
	return "unknown"
}
