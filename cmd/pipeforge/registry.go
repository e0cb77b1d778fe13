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
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/pipeforge/pipeforge/fileproxy"
)

// init, add, cat and remove operate directly on the local pipelines
// directory through a fileproxy.Local, the same helpers fileproxy's
// Init/Add/Cat/Remove already implement against any Proxy — there is
// no server round-trip for managing a working copy of pipeline files.

func localProxy(fs *flag.FlagSet) fileproxy.Proxy {
	dir := fs.Lookup("dir").Value.String()
	p, err := fileproxy.NewLocal(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeforge:", err)
		os.Exit(1)
	}
	return p
}

func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.String("dir", "pipelines", "pipelines directory")
	name := fs.String("name", "default", "pipeline name")
	fs.Parse(args)
	p := localProxy(fs)
	if err := fileproxy.Init(p, *name); err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
}

func addCmd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	fs.String("dir", "pipelines", "pipelines directory")
	name := fs.String("name", "", "pipeline name")
	file := fs.String("file", "", "path to pipeline YAML content, - for stdin")
	overwrite := fs.Bool("overwrite", false, "replace an existing pipeline of the same name")
	fs.Parse(args)
	if *name == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "add: --name and --file are required")
		os.Exit(2)
	}
	p := localProxy(fs)
	var content []byte
	var err error
	if *file == "-" {
		content, err = ioutil.ReadAll(os.Stdin)
	} else {
		content, err = ioutil.ReadFile(*file)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "add:", err)
		os.Exit(1)
	}
	if err := fileproxy.Add(p, *name, content, *overwrite); err != nil {
		fmt.Fprintln(os.Stderr, "add:", err)
		os.Exit(1)
	}
}

func catCmd(args []string) {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	fs.String("dir", "pipelines", "pipelines directory")
	name := fs.String("name", "", "pipeline name")
	fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "cat: --name is required")
		os.Exit(2)
	}
	p := localProxy(fs)
	content, err := fileproxy.Cat(p, *name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cat:", err)
		os.Exit(1)
	}
	os.Stdout.Write(content)
}

func removeCmd(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	fs.String("dir", "pipelines", "pipelines directory")
	name := fs.String("name", "", "pipeline name")
	fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "remove: --name is required")
		os.Exit(2)
	}
	p := localProxy(fs)
	if err := fileproxy.Remove(p, *name); err != nil {
		fmt.Fprintln(os.Stderr, "remove:", err)
		os.Exit(1)
	}
}
