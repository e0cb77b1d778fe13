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

package supervisor

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/store"
)

// CronJobsFromConfig converts the YAML-configured cron job list into
// the CronJob values NewScheduler expects.
func CronJobsFromConfig(jobs []config.CronJob) []CronJob {
	out := make([]CronJob, len(jobs))
	for i, j := range jobs {
		out[i] = CronJob{
			ID:          j.ID,
			Pipeline:    j.Pipeline,
			Schedule:    j.Schedule,
			Variables:   j.Variables,
			Environment: j.Environment,
		}
	}
	return out
}

// Supervisor wires a Queue, a Spawner, a WorkerServer and an optional
// Scheduler into the single object the server package mounts at
// /ws-worker/ and submits runs through.
type Supervisor struct {
	Queue      *Queue
	WorkerHTTP *WorkerServer
	Scheduler  *Scheduler

	store *store.Store

	stop chan struct{}
}

// Config gathers the knobs New needs; WorkerCount, BinaryPath and
// ConfigPath normally come straight from config.Config.
type Config struct {
	WorkerCount int
	BinaryPath  string
	ConfigPath  string
	LogsDir     string
	CronJobs    []config.CronJob
}

// NewSupervisor builds a Supervisor bounded to cfg.WorkerCount
// concurrent worker subprocesses, backed by st for Run Record
// persistence.
func NewSupervisor(cfg Config, st *store.Store, logger *log.Logger) (*Supervisor, error) {
	reg := newRegistry()
	q := New(cfg.WorkerCount, nil, logger)
	spawner := &Spawner{
		BinaryPath: cfg.BinaryPath,
		ConfigPath: cfg.ConfigPath,
		LogsDir:    cfg.LogsDir,
		Registry:   reg,
		Queue:      q,
		Logger:     logger,
	}
	q.dispatch = spawner.Dispatch

	var sched *Scheduler
	if len(cfg.CronJobs) > 0 {
		s, err := NewScheduler(q, st, logger, CronJobsFromConfig(cfg.CronJobs))
		if err != nil {
			return nil, err
		}
		sched = s
	}

	return &Supervisor{
		Queue: q,
		WorkerHTTP: &WorkerServer{
			Queue:    q,
			Store:    st,
			Registry: reg,
			Logger:   logger,
		},
		Scheduler: sched,
		store:     st,
		stop:      make(chan struct{}),
	}, nil
}

// Submit creates a Run Record for pipeline and enqueues it, returning
// the generated run id. Nothing in this repository calls it: the server
// mounts no run-submission route, the CLI's `run` command builds its
// Runner in-process, and the Scheduler enqueues through Queue directly.
func (s *Supervisor) Submit(ctx context.Context, pipeline string, variables, environment map[string]string) (string, error) {
	runID := uuid.NewString()
	if s.store != nil {
		if err := s.store.CreateRun(ctx, &store.RunRecord{ID: runID, Name: pipeline}); err != nil {
			return "", err
		}
	}
	if err := s.Queue.Enqueue(Job{
		RunID:       runID,
		Pipeline:    pipeline,
		Variables:   variables,
		Environment: environment,
	}); err != nil {
		return "", err
	}
	return runID, nil
}

// StopRun requests the worker currently running runID to stop, persisting
// the sticky stop_requested flag regardless of whether a live worker
// connection is found.
// The server package calls this for `/stop` requests against a run the
// Supervisor dispatched; returns whether a live worker was signalled.
func (s *Supervisor) StopRun(ctx context.Context, runID string) (bool, error) {
	if s.store != nil {
		if err := s.store.RequestStop(ctx, runID); err != nil {
			return false, err
		}
	}
	return s.WorkerHTTP.Registry.stop(runID), nil
}

// Start launches the Scheduler, if configured. The WorkerHTTP handler
// is mounted by the server package directly; it needs no goroutine of
// its own.
func (s *Supervisor) Start() {
	if s.Scheduler != nil {
		go s.Scheduler.Run(s.stop)
	}
}

// Stop signals the Scheduler to exit.
func (s *Supervisor) Stop() {
	close(s.stop)
}
