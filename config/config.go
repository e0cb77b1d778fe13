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

// Package config loads the process-wide Config referenced by the
// Runner's construction contract and by the server and
// supervisor entrypoints: server URLs, worker count, database path, HA
// peer list and auth token, loaded from YAML with environment variable
// overrides, the same shape backend/ci.go uses for CIConfig.
package config

import (
	"io/ioutil"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/pipeforge/pipeforge/pipeline"
)

// Server names a remote pipeforge server, either a pipeline-submission
// target (referenced by an External{Server: ...} or `run --server`) or
// an ssh_ref resolution target (referenced by a PlatformSpec.ServerName).
type Server struct {
	Name  string                `yaml:"name"`
	URL   string                `yaml:"url,omitempty"`
	Token string                `yaml:"token,omitempty"`
	Ssh   *pipeline.PlatformSpec `yaml:"ssh,omitempty"`
}

// HAPeer is one member of the Raft group, resolved at boot into the
// static Raft membership list.
type HAPeer struct {
	NodeID  string `yaml:"node_id"`
	Address string `yaml:"address"`
	Voter   bool   `yaml:"voter"`
}

// CronJob is one scheduled pipeline trigger, the YAML-configured
// counterpart of the original bld project's cron_jobs table,
// consumed by supervisor.NewScheduler.
type CronJob struct {
	ID          string            `yaml:"id"`
	Pipeline    string            `yaml:"pipeline"`
	Schedule    string            `yaml:"schedule"`
	Variables   map[string]string `yaml:"variables,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// Config is the process-wide configuration every entrypoint
// (cmd/pipeforge's run/server/worker subcommands) loads once at
// startup.
type Config struct {
	ServerHost    string    `yaml:"server_host,omitempty"`
	ServerPort    int       `yaml:"server_port,omitempty"`
	WorkerCount   int       `yaml:"worker_count,omitempty"`
	DatabasePath  string    `yaml:"database_path,omitempty"`
	PipelinesDir  string    `yaml:"pipelines_dir,omitempty"`
	LogsDir       string    `yaml:"logs_dir,omitempty"`
	AuthToken     string    `yaml:"auth_token,omitempty"`
	HAEnabled     bool      `yaml:"ha_enabled,omitempty"`
	HANodeID      string    `yaml:"ha_node_id,omitempty"`
	HABindAddress string    `yaml:"ha_bind_address,omitempty"`
	HAPeers       []HAPeer  `yaml:"ha_peers,omitempty"`
	Servers       []Server  `yaml:"servers,omitempty"`
	CronJobs      []CronJob `yaml:"cron_jobs,omitempty"`
}

// Load reads and parses the YAML config at path, then applies
// PIPEFORGE_*-prefixed environment variable overrides for the fields
// most commonly varied between deployments.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ServerHost:   "0.0.0.0",
		ServerPort:   6080,
		WorkerCount:  4,
		DatabasePath: "pipeforge.db",
		PipelinesDir: "pipelines",
		LogsDir:      "logs",
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "config: malformed yaml")
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PIPEFORGE_SERVER_HOST"); v != "" {
		c.ServerHost = v
	}
	if v := os.Getenv("PIPEFORGE_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.ServerPort = p
		}
	}
	if v := os.Getenv("PIPEFORGE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerCount = n
		}
	}
	if v := os.Getenv("PIPEFORGE_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("PIPEFORGE_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
}

// ServerByName implements platform.ServerConfig, resolving an ssh_ref
// platform spec's server_name against the configured Servers list.
func (c *Config) ServerByName(name string) (pipeline.PlatformSpec, bool) {
	for _, s := range c.Servers {
		if s.Name == name && s.Ssh != nil {
			return *s.Ssh, true
		}
	}
	return pipeline.PlatformSpec{}, false
}

// ServerURLByName resolves a named server's base URL, used when an
// External.Server or `run --server` names a remote pipeforge instance
// rather than an ssh_ref target.
func (c *Config) ServerURLByName(name string) (Server, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return Server{}, false
}
