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
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/pipeforge/pipeforge/store"
)

// CronJob is one scheduled pipeline trigger, modeled on the original
// bld project's cron_jobs table: Schedule
// is a standard 5-field cron expression (minute hour day-of-month
// month day-of-week), evaluated against the pipeline named Pipeline.
type CronJob struct {
	ID          string
	Pipeline    string
	Schedule    string
	Variables   map[string]string
	Environment map[string]string
}

// field is one parsed cron field: a set of matching values, or nil for "*".
type field struct {
	values map[int]bool
}

func (f field) matches(v int) bool {
	return f.values == nil || f.values[v]
}

// schedule is a parsed 5-field cron expression.
type schedule struct {
	minute, hour, dom, month, dow field
}

// parseSchedule parses a standard 5-field cron expression: each field
// is "*", a single number, a comma-separated list, a "lo-hi" range, or
// any of those with a "/step" suffix.
func parseSchedule(expr string) (schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return schedule{}, fmt.Errorf("supervisor: cron expression %q must have 5 fields, got %d", expr, len(parts))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	fields := make([]field, 5)
	for i, p := range parts {
		f, err := parseField(p, bounds[i][0], bounds[i][1])
		if err != nil {
			return schedule{}, err
		}
		fields[i] = f
	}
	return schedule{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4]}, nil
}

func parseField(spec string, lo, hi int) (field, error) {
	if spec == "*" {
		return field{}, nil
	}
	var step = 1
	if i := strings.IndexByte(spec, '/'); i >= 0 {
		s, err := strconv.Atoi(spec[i+1:])
		if err != nil || s <= 0 {
			return field{}, fmt.Errorf("supervisor: invalid step in cron field %q", spec)
		}
		step = s
		spec = spec[:i]
	}

	values := make(map[int]bool)
	addRange := func(a, b int) {
		for v := a; v <= b; v += step {
			values[v] = true
		}
	}

	if spec == "*" || spec == "" {
		addRange(lo, hi)
		return field{values: values}, nil
	}

	for _, piece := range strings.Split(spec, ",") {
		if dash := strings.IndexByte(piece, '-'); dash >= 0 {
			a, err1 := strconv.Atoi(piece[:dash])
			b, err2 := strconv.Atoi(piece[dash+1:])
			if err1 != nil || err2 != nil || a > b {
				return field{}, fmt.Errorf("supervisor: invalid range %q in cron field", piece)
			}
			addRange(a, b)
			continue
		}
		n, err := strconv.Atoi(piece)
		if err != nil {
			return field{}, fmt.Errorf("supervisor: invalid value %q in cron field", piece)
		}
		values[n] = true
	}
	return field{values: values}, nil
}

func (s schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// Scheduler periodically evaluates a fixed set of CronJobs and enqueues
// a Job through Queue for any whose schedule matches the current
// minute, exactly once per matching minute.
type Scheduler struct {
	Queue  *Queue
	Store  *store.Store
	Logger *log.Logger

	jobs      []CronJob
	schedules []schedule
	lastRun   map[string]time.Time
}

// NewScheduler parses jobs' cron expressions up front, returning an
// error naming the first job whose schedule fails to parse.
func NewScheduler(queue *Queue, st *store.Store, logger *log.Logger, jobs []CronJob) (*Scheduler, error) {
	schedules := make([]schedule, len(jobs))
	for i, j := range jobs {
		s, err := parseSchedule(j.Schedule)
		if err != nil {
			return nil, fmt.Errorf("supervisor: cron job %s: %w", j.ID, err)
		}
		schedules[i] = s
	}
	return &Scheduler{
		Queue:     queue,
		Store:     st,
		Logger:    logger,
		jobs:      jobs,
		schedules: schedules,
		lastRun:   make(map[string]time.Time),
	}, nil
}

// Run blocks, checking the schedules every 30 seconds until stop is
// closed; tick admits each matching minute at most once.
func (s *Scheduler) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	minute := now.Truncate(time.Minute)
	for i, sched := range s.schedules {
		job := s.jobs[i]
		if !sched.matches(now) {
			continue
		}
		if s.lastRun[job.ID].Equal(minute) {
			continue
		}
		s.lastRun[job.ID] = minute
		runID := job.ID + "-" + minute.Format("200601021504")
		if s.Store != nil {
			if err := s.Store.CreateRun(context.Background(), &store.RunRecord{
				ID:   runID,
				Name: job.Pipeline,
			}); err != nil && s.Logger != nil {
				s.Logger.Printf("supervisor: scheduler create run %s: %v", job.ID, err)
				continue
			}
		}
		if err := s.Queue.Enqueue(Job{
			RunID:       runID,
			Pipeline:    job.Pipeline,
			Variables:   job.Variables,
			Environment: job.Environment,
		}); err != nil && s.Logger != nil {
			s.Logger.Printf("supervisor: scheduler enqueue %s: %v", job.ID, err)
		}
	}
}
