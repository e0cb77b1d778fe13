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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pipeforge/pipeforge/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "worker_count: 8\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("got worker_count=%d, want 8", cfg.WorkerCount)
	}
	if cfg.ServerPort != 6080 {
		t.Errorf("got default server_port=%d, want 6080", cfg.ServerPort)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "worker_count: 2\n")
	os.Setenv("PIPEFORGE_WORKER_COUNT", "16")
	defer os.Unsetenv("PIPEFORGE_WORKER_COUNT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerCount != 16 {
		t.Errorf("got worker_count=%d, want env override 16", cfg.WorkerCount)
	}
}

func TestServerByNameResolvesSshRef(t *testing.T) {
	cfg := &Config{Servers: []Server{
		{Name: "ci-box", Ssh: &pipeline.PlatformSpec{Kind: pipeline.PlatformSsh, Host: "10.0.0.5"}},
	}}
	spec, ok := cfg.ServerByName("ci-box")
	if !ok {
		t.Fatal("expected ci-box to resolve")
	}
	if spec.Host != "10.0.0.5" {
		t.Errorf("got host %q, want 10.0.0.5", spec.Host)
	}
	if _, ok := cfg.ServerByName("missing"); ok {
		t.Error("expected missing server to not resolve")
	}
}
