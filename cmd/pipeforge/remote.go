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
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"strconv"

	"github.com/pipeforge/pipeforge/store"
)

// push, pull, list, stop, hist and inspect all talk to a running
// server over the same HTTP surface server/handlers.go implements —
// unlike init/add/cat/remove, these have no meaning against a bare
// local directory.

func remoteFlags(fs *flag.FlagSet) *apiClient {
	server := fs.Lookup("server").Value.String()
	token := fs.Lookup("token").Value.String()
	return &apiClient{baseURL: server, token: token}
}

func newRemoteFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("server", "http://localhost:6080", "pipeforge server base URL")
	fs.String("token", "", "auth token")
	return fs
}

func pushCmd(args []string) {
	fs := newRemoteFlagSet("push")
	name := fs.String("name", "", "pipeline name")
	file := fs.String("file", "", "path to pipeline YAML content, - for stdin")
	fs.Parse(args)
	if *name == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "push: --name and --file are required")
		os.Exit(2)
	}
	var content []byte
	var err error
	if *file == "-" {
		content, err = ioutil.ReadAll(os.Stdin)
	} else {
		content, err = ioutil.ReadFile(*file)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "push:", err)
		os.Exit(1)
	}
	c := remoteFlags(fs)
	if err := c.do("POST", "/push", map[string]string{"name": *name, "content": string(content)}, nil); err != nil {
		fmt.Fprintln(os.Stderr, "push:", err)
		os.Exit(1)
	}
}

func pullCmd(args []string) {
	fs := newRemoteFlagSet("pull")
	name := fs.String("name", "", "pipeline name")
	fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "pull: --name is required")
		os.Exit(2)
	}
	c := remoteFlags(fs)
	var out struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	path := "/pull?name=" + url.QueryEscape(*name)
	if err := c.do("GET", path, nil, &out); err != nil {
		fmt.Fprintln(os.Stderr, "pull:", err)
		os.Exit(1)
	}
	fmt.Print(out.Content)
}

func listCmd(args []string) {
	fs := newRemoteFlagSet("list")
	fs.Parse(args)
	c := remoteFlags(fs)
	var names []string
	if err := c.do("GET", "/list", nil, &names); err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func stopCmd(args []string) {
	fs := newRemoteFlagSet("stop")
	runID := fs.String("run-id", "", "run id to stop")
	fs.Parse(args)
	if *runID == "" {
		fmt.Fprintln(os.Stderr, "stop: --run-id is required")
		os.Exit(2)
	}
	c := remoteFlags(fs)
	var out struct {
		RunID     string `json:"run_id"`
		Signalled bool   `json:"signalled"`
	}
	if err := c.do("POST", "/stop", map[string]string{"run_id": *runID}, &out); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
		os.Exit(1)
	}
	fmt.Printf("run %s: signalled=%v\n", out.RunID, out.Signalled)
}

func histCmd(args []string) {
	fs := newRemoteFlagSet("hist")
	name := fs.String("name", "", "filter by pipeline name")
	state := fs.String("state", "", "filter by run state (queued|running|finished|faulted)")
	limit := fs.Int("limit", 0, "maximum number of runs to return")
	fs.Parse(args)
	c := remoteFlags(fs)

	q := url.Values{}
	if *name != "" {
		q.Set("name", *name)
	}
	if *state != "" {
		q.Set("state", *state)
	}
	if *limit > 0 {
		q.Set("limit", strconv.Itoa(*limit))
	}
	var runs []store.RunRecord
	if err := c.do("GET", "/hist?"+q.Encode(), nil, &runs); err != nil {
		fmt.Fprintln(os.Stderr, "hist:", err)
		os.Exit(1)
	}
	for _, r := range runs {
		fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Name, r.State, r.StartTime.Format("2006-01-02T15:04:05"))
	}
}

func inspectCmd(args []string) {
	fs := newRemoteFlagSet("inspect")
	id := fs.String("id", "", "run id")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "inspect: --id is required")
		os.Exit(2)
	}
	c := remoteFlags(fs)
	var out struct {
		Run *store.RunRecord `json:"run"`
		Log string           `json:"log"`
	}
	if err := c.do("GET", "/inspect?id="+url.QueryEscape(*id), nil, &out); err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
	raw, _ := json.MarshalIndent(out.Run, "", "  ")
	fmt.Println(string(raw))
	fmt.Println("--- log ---")
	fmt.Print(out.Log)
}
