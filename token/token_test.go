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

package token

import (
	"testing"
	"time"
)

func TestApplyPrecedenceCallerOverDefault(t *testing.T) {
	c := Context{
		Variables:        map[string]string{"who": "earth"},
		VariableDefaults: map[string]string{"who": "world"},
	}
	if got := c.Apply("echo ${{variable:who}}"); got != "echo earth" {
		t.Errorf("got %q", got)
	}
}

func TestApplyFallsBackToDefault(t *testing.T) {
	c := Context{VariableDefaults: map[string]string{"who": "world"}}
	if got := c.Apply("echo ${{variable:who}}"); got != "echo world" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUnknownKeyExpandsEmpty(t *testing.T) {
	c := Context{}
	if got := c.Apply("echo [${{variable:missing}}]"); got != "echo []" {
		t.Errorf("got %q", got)
	}
}

func TestApplyRunProperties(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := Context{RunID: "abc-123", RunStartTime: start}
	got := c.Apply("${{run:id}} @ ${{run:start_time}}")
	want := "abc-123 @ 1700000000"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestApplyIsSinglePassNotRecursive(t *testing.T) {
	// The expansion of ${{variable:a}} itself contains token syntax; a
	// single-pass substitution must not re-expand it.
	c := Context{Variables: map[string]string{"a": "${{variable:b}}"}, VariableDefaults: map[string]string{"b": "leaked"}}
	if got := c.Apply("${{variable:a}}"); got != "${{variable:b}}" {
		t.Errorf("expected no recursive expansion, got %q", got)
	}
}

func TestApplyIdempotentOnTokenFreeOutput(t *testing.T) {
	c := Context{Variables: map[string]string{"who": "earth"}}
	once := c.Apply("echo ${{variable:who}}")
	twice := c.Apply(once)
	if once != twice {
		t.Errorf("Apply not idempotent on token-free output: %q vs %q", once, twice)
	}
}
