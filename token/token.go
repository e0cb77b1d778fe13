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

// Package token implements the single-pass ${{variable:k}} /
// ${{environment:k}} / run-property substitution grammar.
package token

import (
	"regexp"
	"strconv"
	"time"
)

// kind selects which map a token resolves against.
type kind int

const (
	kindVariable kind = iota
	kindEnvironment
	kindRunID
	kindRunStartTime
)

var tokenRe = regexp.MustCompile(`\$\{\{\s*(variable|var|environment|env|run)(?::([A-Za-z0-9_.\-]+))?\s*\}\}`)

// Context carries everything needed to expand tokens in a string: the
// caller-supplied overrides, the pipeline's own defaults, and the two
// run-identity properties.
type Context struct {
	Variables       map[string]string
	Environment     map[string]string
	VariableDefaults map[string]string
	EnvironmentDefaults map[string]string
	RunID           string
	RunStartTime    time.Time
}

// Apply expands every recognized token in s exactly once (no recursive
// re-expansion, ). Unknown keys expand to the empty
// string, never an error; a malformed token (one that doesn't match the
// expected ${{kind:key}} / ${{run}} shape at all) is left untouched by
// the regexp and is the caller's responsibility to reject earlier as a
// parse error if it matters.
func (c Context) Apply(s string) string {
	return tokenRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := tokenRe.FindStringSubmatch(match)
		k, key := sub[1], sub[2]
		switch k {
		case "variable", "var":
			return c.resolve(key, c.Variables, c.VariableDefaults)
		case "environment", "env":
			return c.resolve(key, c.Environment, c.EnvironmentDefaults)
		case "run":
			switch key {
			case "id":
				return c.RunID
			case "start_time":
				return strconv.FormatInt(c.RunStartTime.Unix(), 10)
			}
		}
		return ""
	})
}

func (c Context) resolve(key string, overrides, defaults map[string]string) string {
	if v, ok := overrides[key]; ok {
		return v
	}
	if v, ok := defaults[key]; ok {
		return v
	}
	return ""
}

// ApplyMap expands tokens in every value of a string map, used for
// artifact from/to, working dirs, and external overrides.
func (c Context) ApplyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = c.Apply(v)
	}
	return out
}

// ApplySlice expands tokens in every element of a string slice, used
// for a step's command list.
func (c Context) ApplySlice(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = c.Apply(v)
	}
	return out
}
