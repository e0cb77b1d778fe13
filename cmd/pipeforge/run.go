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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/runlog"
	"github.com/pipeforge/pipeforge/runner"
	"github.com/pipeforge/pipeforge/wsapi"
)

// runCmd executes a single pipeline to completion against the local
// filesystem registry, streaming its log to stdout. Ctrl-C requests a
// stop through the shared Execution State rather than killing the
// process outright, so in-flight commands get the same graceful
// cancellation a `/stop` HTTP call triggers.
func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "pipeforge.yaml", "config file path")
	name := fs.String("pipeline", "", "pipeline name to run")
	variables := stringMapFlag(fs, "variable", "k=v pipeline variable override, may repeat")
	environment := stringMapFlag(fs, "environment", "k=v environment override, may repeat")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "run: --pipeline is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}
	proxy, err := fileproxy.NewLocal(cfg.PipelinesDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}

	sink := runlog.NewMemory()
	sink.Tee(os.Stdout)

	state := execstate.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchInterrupt(state, cancel)

	rn, err := runner.Builder{
		RunID:        uuid.NewString(),
		RunStartTime: time.Now(),
		Config:       cfg,
		Proxy:        proxy,
		PipelineName: *name,
		State:        state,
		Logger:       sink,
		Variables:    variables,
		Environment:  environment,
		ServerExec:   &wsapi.ExecClient{Config: cfg},
	}.Build(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}

	if err := rn.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}
}
