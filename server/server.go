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

// Package server assembles the HTTP+WebSocket surface names
// into a single process: the pipeline-registry endpoints mediated by a
// fileproxy.Proxy, the run-record endpoints mediated by a store.Store,
// the Exec/Monitor WebSocket sessions, and, when configured, the Worker
// Queue's /ws-worker/ channel and the HA Coordinator's Raft-facing
// routes.
package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/ha"
	"github.com/pipeforge/pipeforge/runner"
	"github.com/pipeforge/pipeforge/store"
	"github.com/pipeforge/pipeforge/supervisor"
	"github.com/pipeforge/pipeforge/wsapi"
)

// Server holds every dependency the router's handlers close over: one
// struct, one *http.Server, one Run.
type Server struct {
	Config     *config.Config
	Store      *store.Store
	Proxy      fileproxy.Proxy
	Supervisor *supervisor.Supervisor
	HA         *ha.Coordinator
	Active     *activeRuns
	LogsDir    string

	logger     *log.Logger
	httpServer *http.Server
}

// New assembles a Server bound to cfg.ServerHost:cfg.ServerPort.
// serverExec, if non-nil, lets a locally-run Exec session's Runner
// compose Server externals against other pipeforge instances; with
// nil, those sessions' Runners reject Server externals.
func New(cfg *config.Config, st *store.Store, proxy fileproxy.Proxy, sup *supervisor.Supervisor,
	coord *ha.Coordinator, serverExec runner.ServerExecClient, logger *log.Logger) *Server {
	s := &Server{
		Config:     cfg,
		Store:      st,
		Proxy:      proxy,
		Supervisor: sup,
		HA:         coord,
		Active:     newActiveRuns(),
		LogsDir:    cfg.LogsDir,
		logger:     logger,
	}

	addr := cfg.ServerHost + ":" + strconv.Itoa(cfg.ServerPort)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router(serverExec),
		ErrorLog:       logger,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// router builds the chi tree: health and HA/Raft routes run
// unauthenticated ; every other route sits behind
// requireToken.
func (s *Server) router(serverExec runner.ServerExecClient) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(requestLogger(s.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	if s.HA != nil {
		r.Get("/ha/append-entries", s.HA.StatusHandler)
		r.Get("/ha/vote", s.HA.StatusHandler)
		r.Post("/ha/install-snapshot", s.HA.StatusHandler)
		r.Get("/ws-ha/", s.HA.WSHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireToken(s.Config.AuthToken))

		r.Get("/list", s.handleList())
		r.Post("/push", s.handlePush())
		r.Get("/pull", s.handlePull())
		r.Post("/remove", s.handleRemove())
		r.Post("/stop", s.handleStop())
		r.Get("/hist", s.handleHist())
		r.Get("/inspect", s.handleInspect())
		r.Get("/deps", s.handleDeps())

		exec := &wsapi.ExecServer{
			Store:      s.Store,
			Proxy:      s.Proxy,
			Config:     s.Config,
			LogsDir:    s.LogsDir,
			ServerExec: serverExec,
			Active:     s.Active,
		}
		r.Get("/ws-exec/", exec.ServeHTTP)

		monitor := &wsapi.MonitorServer{Store: s.Store, LogsDir: s.LogsDir}
		r.Get("/ws-monit/", monitor.ServeHTTP)

		if s.Supervisor != nil {
			r.Get("/ws-worker/", s.Supervisor.WorkerHTTP.ServeHTTP)
		}
	})

	return r
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM triggers
// a graceful shutdown.
func (s *Server) Run() error {
	if s.Supervisor != nil {
		s.Supervisor.Start()
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.logger.Println("shutting down")
		if s.Supervisor != nil {
			s.Supervisor.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.httpServer.SetKeepAlivesEnabled(false)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Println("could not shut down gracefully:", err)
		}
		close(done)
	}()

	s.logger.Println("listening on", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-done
	return nil
}

// requestLogger logs method, path and wall-clock duration for every
// request handled by the router.
func requestLogger(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			l.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

func parseLimit(s string) (int, error) {
	return strconv.Atoi(s)
}
