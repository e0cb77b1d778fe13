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
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/runner"
)

// fanoutContext publishes every event to each of its senders in order,
// letting the worker subcommand keep the persisted Run Record table and
// the supervisor's Progress log both in step with a single Runner's
// events without the Builder's Context field taking more than one
// ContextSender.
type fanoutContext []runner.ContextSender

func (f fanoutContext) Publish(ev runner.Event) error {
	var firstErr error
	for _, s := range f {
		if err := s.Publish(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// kvFlag accumulates repeated --flag k=v occurrences into a map,
// the same repeatable-flag idiom the Spawner's own worker invocation
// expects on the other end.
type kvFlag struct{ m map[string]string }

func (f *kvFlag) String() string { return "" }

func (f *kvFlag) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected k=v, got %q", v)
	}
	f.m[parts[0]] = parts[1]
	return nil
}

func stringMapFlag(fs *flag.FlagSet, name, usage string) map[string]string {
	f := &kvFlag{m: make(map[string]string)}
	fs.Var(f, name, usage)
	return f.m
}

// watchInterrupt requests a stop on state the first time SIGINT/SIGTERM
// arrives and cancels ctx (via cancel) on the second, so an operator who
// really wants to kill the process immediately still can.
func watchInterrupt(state *execstate.ExecutionState, cancel func()) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	state.RequestStop()
	<-sig
	cancel()
}

// apiClient is the thin HTTP client every remote-facing subcommand
// (push/pull/list/stop/hist/inspect) shares, carrying the same
// Authorization: Bearer convention server/auth.go checks.
type apiClient struct {
	baseURL string
	token   string
}

func (c *apiClient) do(method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pipeforge: %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
