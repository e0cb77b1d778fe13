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
	"context"
	"encoding/base64"

	"github.com/google/go-github/v32/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// GitHub serves pipeline definitions straight out of a GitHub
// repository's contents API, the same module agent/handlers.go already
// depends on for webhook parsing (github.ValidatePayload/ParseWebHook);
// here we exercise its REST client surface instead (Repositories.GetContents/
// CreateFile/UpdateFile/DeleteFile) to read and write the files themselves.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	path   string
	branch string
}

// NewGitHub builds a GitHub proxy against owner/repo, storing pipeline
// files under path on branch. An empty token yields an unauthenticated
// client, sufficient for public repositories.
func NewGitHub(ctx context.Context, token, owner, repo, path, branch string) *GitHub {
	var hc = oauth2.NewClient(ctx, nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	return &GitHub{
		client: github.NewClient(hc),
		owner:  owner,
		repo:   repo,
		path:   path,
		branch: branch,
	}
}

func (g *GitHub) filePath(name string) string {
	if g.path == "" {
		return name + pipelineExt
	}
	return g.path + "/" + name + pipelineExt
}

func (g *GitHub) Read(name string) ([]byte, error) {
	ctx := context.Background()
	fc, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, g.filePath(name),
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return nil, errors.Wrap(err, "fileproxy: github get contents")
	}
	if fc == nil {
		return nil, ErrNotFound
	}
	if fc.Content != nil {
		decoded, err := base64.StdEncoding.DecodeString(*fc.Content)
		if err == nil {
			return decoded, nil
		}
	}
	content, err := fc.GetContent()
	return []byte(content), err
}

func (g *GitHub) List() ([]string, error) {
	ctx := context.Background()
	_, dir, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, g.path,
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return nil, errors.Wrap(err, "fileproxy: github list")
	}
	names := make([]string, 0, len(dir))
	for _, entry := range dir {
		if entry.GetType() != "file" {
			continue
		}
		n := entry.GetName()
		if len(n) > len(pipelineExt) && n[len(n)-len(pipelineExt):] == pipelineExt {
			names = append(names, n[:len(n)-len(pipelineExt)])
		}
	}
	return names, nil
}

// Write creates or updates the pipeline file via the contents API,
// fetching the current blob SHA first when the file already exists (the
// API requires it for updates).
func (g *GitHub) Write(name string, content []byte) error {
	ctx := context.Background()
	var sha *string
	if fc, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, g.filePath(name),
		&github.RepositoryContentGetOptions{Ref: g.branch}); err == nil && fc != nil {
		sha = fc.SHA
	}
	msg := "pipeforge: update " + name
	opts := &github.RepositoryContentFileOptions{
		Message: &msg,
		Content: content,
		Branch:  &g.branch,
		SHA:     sha,
	}
	var err error
	if sha != nil {
		_, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, g.filePath(name), opts)
	} else {
		_, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, g.filePath(name), opts)
	}
	return err
}

func (g *GitHub) Remove(name string) error {
	ctx := context.Background()
	fc, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, g.filePath(name),
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return ErrNotFound
	}
	msg := "pipeforge: remove " + name
	_, _, err = g.client.Repositories.DeleteFile(ctx, g.owner, g.repo, g.filePath(name),
		&github.RepositoryContentFileOptions{Message: &msg, SHA: fc.SHA, Branch: &g.branch})
	return err
}
