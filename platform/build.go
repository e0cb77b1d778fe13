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

package platform

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/docker/docker/api/types"
	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
)

// Build builds an image from a Dockerfile and then drives it exactly
// like Container, grounded on backend/runner.go's createDockerfile/
// buildImage sequence which assembles an in-memory tar build context
// before handing it to the Docker daemon.
type Build struct {
	*Container
	tag string
}

// NewBuild reads the Dockerfile at dockerfilePath, builds an image
// tagged tag, then starts a container from it the same way NewContainer
// does.
func NewBuild(ctx context.Context, dockerfilePath, tag string) (*Build, error) {
	cli, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "build: docker client")
	}

	contents, err := ioutil.ReadFile(dockerfilePath)
	if err != nil {
		return nil, errors.Wrap(err, "build: read dockerfile")
	}
	tarCtx, err := dockerfileTar(contents)
	if err != nil {
		return nil, errors.Wrap(err, "build: tar context")
	}

	resp, err := cli.ImageBuild(ctx, tarCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build: image build")
	}
	io.Copy(ioutil.Discard, resp.Body)
	resp.Body.Close()

	c := &Container{cli: cli, image: tag, pull: false}
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return &Build{Container: c, tag: tag}, nil
}

// dockerfileTar wraps a Dockerfile's contents in a single-entry tar
// stream, the build context shape the Docker API's ImageBuild expects.
func dockerfileTar(dockerfile []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(dockerfile)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(dockerfile); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
