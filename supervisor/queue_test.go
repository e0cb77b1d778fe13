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
	"sync"
	"testing"
)

func TestEnqueueAdmitsUpToCapacity(t *testing.T) {
	var mu sync.Mutex
	var dispatched []string
	q := New(2, func(j Job) error {
		mu.Lock()
		dispatched = append(dispatched, j.RunID)
		mu.Unlock()
		return nil
	}, nil)

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(Job{RunID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	if got := q.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}
	if got := q.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}
	mu.Lock()
	if len(dispatched) != 2 {
		t.Errorf("dispatched %v, want 2 entries", dispatched)
	}
	mu.Unlock()
}

func TestReleaseAdmitsNextPending(t *testing.T) {
	var dispatched []string
	q := New(1, func(j Job) error {
		dispatched = append(dispatched, j.RunID)
		return nil
	}, nil)

	q.Enqueue(Job{RunID: "a"})
	q.Enqueue(Job{RunID: "b"})
	if got := q.PendingCount(); got != 1 {
		t.Fatalf("PendingCount() = %d, want 1", got)
	}

	q.Release("a")
	if got := q.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
	if got := q.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
	if len(dispatched) != 2 || dispatched[1] != "b" {
		t.Errorf("dispatched = %v, want [a b]", dispatched)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	calls := 0
	q := New(1, func(j Job) error { calls++; return nil }, nil)
	q.Enqueue(Job{RunID: "a"})
	q.Release("a")
	q.Release("a")
	if got := q.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after double release", got)
	}
	if calls != 1 {
		t.Errorf("dispatch called %d times, want 1", calls)
	}
}
