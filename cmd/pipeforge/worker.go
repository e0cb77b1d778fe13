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
	"path/filepath"
	"time"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/runlog"
	"github.com/pipeforge/pipeforge/runner"
	"github.com/pipeforge/pipeforge/store"
	"github.com/pipeforge/pipeforge/supervisor"
	"github.com/pipeforge/pipeforge/wsapi"
)

// workerCmd is the subprocess the Supervisor's Spawner execs for every
// admitted Job: it dials the supervisor's /ws-worker/ channel, opens
// the shared Run Record table directly (WAL mode lets the two
// processes share the database file), and drives a single Runner to
// completion, reporting progress over the IPC channel as it goes.
func workerCmd(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "pipeforge.yaml", "config file path")
	pipelineName := fs.String("pipeline", "", "pipeline name to run")
	runID := fs.String("run-id", "", "run id assigned by the supervisor")
	variables := stringMapFlag(fs, "variable", "k=v pipeline variable override, may repeat")
	environment := stringMapFlag(fs, "environment", "k=v environment override, may repeat")
	fs.Parse(args)

	if *pipelineName == "" || *runID == "" {
		fmt.Fprintln(os.Stderr, "worker: --pipeline and --run-id are required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
	proxy, err := fileproxy.NewLocal(cfg.PipelinesDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
	defer st.Close()

	workerURL := fmt.Sprintf("ws://%s:%d/ws-worker/", cfg.ServerHost, cfg.ServerPort)
	ipc, err := supervisor.DialWorkerIPC(workerURL, *runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
	defer ipc.Close()

	sink, err := runlog.NewFile(filepath.Join(cfg.LogsDir, *runID+".log"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
	defer sink.Close()

	state := execstate.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pollStopRequested(ctx, st, *runID, state)

	rn, err := runner.Builder{
		RunID:        *runID,
		RunStartTime: time.Now(),
		Config:       cfg,
		Proxy:        proxy,
		PipelineName: *pipelineName,
		State:        state,
		Logger:       sink,
		Variables:    variables,
		Environment:  environment,
		Context:      fanoutContext{store.RunRecordSink{Store: st}, ipc},
		IPC:          ipc,
		ServerExec:   &wsapi.ExecClient{Config: cfg},
	}.Build(ctx)
	if err != nil {
		sink.Line("error: %v", err)
		os.Exit(1)
	}

	if err := rn.Run(ctx); err != nil {
		sink.Line("error: %v", err)
		os.Exit(1)
	}
}

// pollStopRequested periodically checks the persisted stop_requested
// flag and forwards it onto state, so a `/stop` call that only reached
// the sticky store column (no live /ws-worker/ or Exec connection) is
// still honored by this worker within one poll interval.
func pollStopRequested(ctx context.Context, st *store.Store, runID string, state *execstate.ExecutionState) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec, err := st.GetRun(ctx, runID)
			if err != nil {
				continue
			}
			if rec.StopRequested {
				state.RequestStop()
				return
			}
		}
	}
}
