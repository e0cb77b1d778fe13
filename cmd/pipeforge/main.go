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

// Command pipeforge is the single binary behind every role this system
// plays: a one-shot local pipeline runner, the HTTP+WS server, a
// worker subprocess spawned by the Supervisor, and the registry client
// subcommands (add/cat/init/remove/push/pull/list/stop/hist/inspect).
package main

import (
	"fmt"
	"log"
	"os"
)

var subcommands = map[string]func(args []string){
	"run":    runCmd,
	"server": serverCmd,
	"worker": workerCmd,
	"init":   initCmd,
	"add":    addCmd,
	"cat":    catCmd,
	"remove": removeCmd,
	"push":   pushCmd,
	"pull":   pullCmd,
	"list":   listCmd,
	"stop":   stopCmd,
	"hist":   histCmd,
	"inspect": inspectCmd,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := subcommands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "pipeforge: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	cmd(os.Args[2:])
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pipeforge <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands: run, server, worker, init, add, cat, remove, push, pull, list, stop, hist, inspect")
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags)
}
