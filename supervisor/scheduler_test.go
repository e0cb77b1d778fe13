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
	"testing"
	"time"
)

func TestParseScheduleWildcard(t *testing.T) {
	s, err := parseSchedule("* * * * *")
	if err != nil {
		t.Fatalf("parseSchedule: %v", err)
	}
	now := time.Date(2026, 7, 31, 14, 5, 0, 0, time.UTC)
	if !s.matches(now) {
		t.Errorf("wildcard schedule should match any time")
	}
}

func TestParseScheduleSpecificMinuteHour(t *testing.T) {
	s, err := parseSchedule("30 9 * * *")
	if err != nil {
		t.Fatalf("parseSchedule: %v", err)
	}
	match := time.Date(2026, 7, 31, 9, 30, 0, 0, time.UTC)
	noMatch := time.Date(2026, 7, 31, 9, 31, 0, 0, time.UTC)
	if !s.matches(match) {
		t.Errorf("expected match at 09:30")
	}
	if s.matches(noMatch) {
		t.Errorf("expected no match at 09:31")
	}
}

func TestParseScheduleStepAndRange(t *testing.T) {
	s, err := parseSchedule("*/15 9-17 * * 1-5")
	if err != nil {
		t.Fatalf("parseSchedule: %v", err)
	}
	weekday := time.Date(2026, 8, 3, 9, 15, 0, 0, time.UTC) // Monday
	if !s.matches(weekday) {
		t.Errorf("expected match for step/range schedule on a weekday at :15")
	}
	offStep := time.Date(2026, 8, 3, 9, 20, 0, 0, time.UTC)
	if s.matches(offStep) {
		t.Errorf("expected no match off the 15-minute step")
	}
	weekend := time.Date(2026, 8, 1, 9, 15, 0, 0, time.UTC) // Saturday
	if s.matches(weekend) {
		t.Errorf("expected no match on a weekend for a 1-5 dow range")
	}
}

func TestParseScheduleRejectsWrongFieldCount(t *testing.T) {
	if _, err := parseSchedule("* * * *"); err == nil {
		t.Errorf("expected an error for a 4-field expression")
	}
}

func TestSchedulerTickEnqueuesOncePerMinute(t *testing.T) {
	var enqueued []string
	q := New(5, func(j Job) error {
		enqueued = append(enqueued, j.RunID)
		return nil
	}, nil)

	sched, err := NewScheduler(q, nil, nil, []CronJob{
		{ID: "nightly", Pipeline: "build", Schedule: "30 9 * * *"},
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	at := time.Date(2026, 7, 31, 9, 30, 0, 0, time.UTC)
	sched.tick(at)
	sched.tick(at.Add(10 * time.Second)) // still within the same minute

	if len(enqueued) != 1 {
		t.Errorf("enqueued %v, want exactly one trigger for the matching minute", enqueued)
	}

	next := at.Add(24 * time.Hour)
	sched.tick(next)
	if len(enqueued) != 2 {
		t.Errorf("enqueued %v, want a second trigger the next day", enqueued)
	}
}
