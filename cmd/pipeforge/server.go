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
	"flag"
	"fmt"
	"os"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/ha"
	"github.com/pipeforge/pipeforge/server"
	"github.com/pipeforge/pipeforge/store"
	"github.com/pipeforge/pipeforge/supervisor"
	"github.com/pipeforge/pipeforge/wsapi"
)

// serverCmd assembles and runs the HTTP+WS server: it always mounts
// the registry/run-record endpoints, mounts a Supervisor when the
// config's worker_count is above zero, and mounts an HA
// Coordinator when ha_enabled is set.
func serverCmd(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "pipeforge.yaml", "config file path")
	fs.Parse(args)

	logger := newLogger("[server] ")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}

	proxy, err := fileproxy.NewLocal(cfg.PipelinesDir)
	if err != nil {
		logger.Fatal(err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal(err)
	}
	defer st.Close()

	var coord *ha.Coordinator
	if cfg.HAEnabled {
		peers := make([]ha.Peer, len(cfg.HAPeers))
		for i, p := range cfg.HAPeers {
			peers[i] = ha.Peer{NodeID: p.NodeID, Address: p.Address, Voter: p.Voter}
		}
		coord, err = ha.New(cfg.HANodeID, cfg.HABindAddress, peers, st, os.Stdout)
		if err != nil {
			logger.Fatal(err)
		}
		defer coord.Shutdown()
	}

	var sup *supervisor.Supervisor
	if cfg.WorkerCount > 0 {
		self, err := os.Executable()
		if err != nil {
			logger.Fatal(err)
		}
		sup, err = supervisor.NewSupervisor(supervisor.Config{
			WorkerCount: cfg.WorkerCount,
			BinaryPath:  self,
			ConfigPath:  *configPath,
			LogsDir:     cfg.LogsDir,
			CronJobs:    cfg.CronJobs,
		}, st, logger)
		if err != nil {
			logger.Fatal(err)
		}
	}

	srv := server.New(cfg, st, proxy, sup, coord, &wsapi.ExecClient{Config: cfg}, logger)
	if err := srv.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}
