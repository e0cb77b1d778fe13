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
	"bufio"
	"context"
	"io"
	"io/ioutil"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/runlog"
)

// registryPrefix mirrors core/container.go's default Docker Hub prefix
// applied to bare image names.
const registryPrefix = "docker.io/library/"

// Container runs commands inside a single long-lived Docker container
// for the duration of the pipeline (Container platform
// variant), grounded on backend/runner.go's runContainer/cloneRepository
// sequence and core/container.go's RunContainer helper.
type Container struct {
	cli         *docker.Client
	image       string
	pull        bool
	containerID string
}

// NewContainer dials the local Docker daemon exactly as
// core/container.go's RunContainer does (client.NewEnvClient-equivalent)
// and pulls + creates + starts the container up front so Shell calls
// only need to exec into it.
func NewContainer(ctx context.Context, image string, pull bool) (*Container, error) {
	cli, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "container: docker client")
	}
	c := &Container{cli: cli, image: image, pull: pull}
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) start(ctx context.Context) error {
	ref := c.image
	if c.pull {
		reader, err := c.cli.ImagePull(ctx, registryPrefix+c.image, types.ImagePullOptions{})
		if err != nil {
			return errors.Wrap(err, "container: image pull")
		}
		io.Copy(ioutil.Discard, reader)
		reader.Close()
	}
	resp, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image: ref,
		Tty:   false,
		Cmd:   []string{"sleep", "infinity"},
	}, nil, nil, "")
	if err != nil {
		return errors.Wrap(err, "container: create")
	}
	if err := c.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return errors.Wrap(err, "container: start")
	}
	c.containerID = resp.ID
	return nil
}

// Shell execs cmd inside the running container, streaming combined
// stdout/stderr through out via stdcopy.StdCopy, the same demuxing call
// backend/runner.go uses against ContainerLogs.
func (c *Container) Shell(ctx context.Context, workingDir, cmd string, state *execstate.ExecutionState, out *runlog.Sink) error {
	execCfg := types.ExecConfig{
		Cmd:          []string{"sh", "-c", cmd},
		WorkingDir:   workingDir,
		AttachStdout: true,
		AttachStderr: true,
	}
	exec, err := c.cli.ContainerExecCreate(ctx, c.containerID, execCfg)
	if err != nil {
		return errors.Wrap(err, "container: exec create")
	}
	attach, err := c.cli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return errors.Wrap(err, "container: exec attach")
	}
	defer attach.Close()

	done := make(chan error, 1)
	go func() {
		r := bufio.NewReader(attach.Reader)
		_, err := stdcopy.StdCopy(lineWriter{out}, lineWriter{out}, r)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-pollStop(ctx, state):
		return errCancelled
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return errors.Wrap(err, "container: exec inspect")
	}
	if inspect.ExitCode != 0 {
		return errors.Errorf("container: command exited %d", inspect.ExitCode)
	}
	return nil
}

func (c *Container) Push(ctx context.Context, from, to string) error {
	tarReader, err := archive.TarWithOptions(from, &archive.TarOptions{})
	if err != nil {
		return errors.Wrap(err, "container: tar")
	}
	return c.cli.CopyToContainer(ctx, c.containerID, to, tarReader, types.CopyToContainerOptions{})
}

func (c *Container) Get(ctx context.Context, from, to string) error {
	reader, _, err := c.cli.CopyFromContainer(ctx, c.containerID, from)
	if err != nil {
		return errors.Wrap(err, "container: copy from")
	}
	defer reader.Close()
	return archive.Untar(reader, to, &archive.TarOptions{})
}

// Dispose removes the container unless this call came from a child
// (external) pipeline, in which case the container belongs to the
// parent and must survive (reference-counting/owner
// requirement).
func (c *Container) Dispose(ctx context.Context, isChild bool) error {
	if isChild {
		return nil
	}
	return c.cli.ContainerRemove(ctx, c.containerID, types.ContainerRemoveOptions{Force: true})
}

func (c *Container) KeepAlive(ctx context.Context) error { return nil }

func pollStop(ctx context.Context, state *execstate.ExecutionState) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(ch)
				return
			case <-ticker.C:
				if state != nil && state.StopRequested() {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}

// lineWriter adapts a *runlog.Sink to io.Writer for stdcopy.StdCopy,
// which writes arbitrary byte chunks rather than discrete lines. Each
// chunk becomes one Sink.Line with a single trailing newline dropped,
// since Line appends its own; this frames the common well-behaved case
// of newline-terminated process output without doubling line breaks.
type lineWriter struct{ sink *runlog.Sink }

func (w lineWriter) Write(p []byte) (int, error) {
	w.sink.Line("%s", strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
