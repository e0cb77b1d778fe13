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

package fileproxy

import (
	"io/ioutil"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
)

func plumbingBranch(name string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(name)
}

// Git clones a remote repository into a local working copy and serves
// pipeline definitions out of a subdirectory of it, grounded on
// backend/runner.go's cloneRepository (git.PlainClone into a tempdir)
// generalized from a one-shot clone-then-discard to a persistent local
// mirror that is brought up to date by calling Refresh.
type Git struct {
	url     string
	branch  string
	workdir string
	pipeDir string
}

// NewGit clones url (or opens it if a clone already exists at workdir)
// and returns a Git proxy that reads/writes pipeline YAML under
// pipeDir within the working copy.
func NewGit(url, branch, workdir, pipeDir string) (*Git, error) {
	g := &Git{url: url, branch: branch, workdir: workdir, pipeDir: pipeDir}

	if _, err := os.Stat(filepath.Join(workdir, ".git")); err == nil {
		return g, nil
	}

	opts := &git.CloneOptions{URL: url}
	if branch != "" {
		opts.ReferenceName = plumbingBranch(branch)
	}
	if _, err := git.PlainClone(workdir, false, opts); err != nil {
		return nil, errors.Wrap(err, "fileproxy: clone")
	}
	return g, nil
}

// Refresh pulls the latest changes from the configured branch so the
// working copy reflects the remote without a fresh clone. Read and List
// do not call it; they serve whatever the working copy holds.
func (g *Git) Refresh() error {
	repo, err := git.PlainOpen(g.workdir)
	if err != nil {
		return errors.Wrap(err, "fileproxy: open")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "fileproxy: worktree")
	}
	err = wt.Pull(&git.PullOptions{RemoteName: "origin"})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrap(err, "fileproxy: pull")
	}
	return nil
}

func (g *Git) local() *Local {
	return &Local{root: filepath.Join(g.workdir, g.pipeDir)}
}

func (g *Git) Read(name string) ([]byte, error) {
	return g.local().Read(name)
}

func (g *Git) List() ([]string, error) {
	return g.local().List()
}

// Write and Remove operate on the local working copy only; they do not
// commit or push anything back to the remote.
func (g *Git) Write(name string, content []byte) error {
	dir := filepath.Join(g.workdir, g.pipeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(dir, name+pipelineExt), content, 0o644)
}

func (g *Git) Remove(name string) error {
	return g.local().Remove(name)
}
