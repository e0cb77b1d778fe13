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

// Package runner implements the Runner state machine: it
// executes a single pipeline to completion, recursively composing
// sub-pipelines, while propagating a shared Execution State, funnelling
// all observable output through a single Logger, honoring stop signals
// promptly, and optionally reporting lifecycle events through an IPC
// channel to a supervisor.
package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/pipeline"
	"github.com/pipeforge/pipeforge/platform"
	"github.com/pipeforge/pipeforge/runlog"
	"github.com/pipeforge/pipeforge/token"
)

// Builder assembles a Runner construction contract.
// Zero-value State, Logger, Context and IPC fields are filled with
// no-op defaults by Build, and Build rejects a nil Proxy; a nil Config
// or ServerExec is accepted.
type Builder struct {
	RunID        string
	RunStartTime time.Time
	Config       *config.Config
	Proxy        fileproxy.Proxy
	PipelineName string
	State        *execstate.ExecutionState
	Logger       *runlog.Sink
	Variables    map[string]string
	Environment  map[string]string
	Context      ContextSender
	IPC          IPC
	IsChild      bool
	ServerExec   ServerExecClient
}

// Build resolves PipelineName through Proxy, parses it, resolves its
// runs_on to a concrete Platform, and returns the assembled Runner.
// Building fails if the pipeline cannot be read or parsed, if the
// platform cannot be initialized, or if token resolution of the
// runs_on field fails.
func (b Builder) Build(ctx context.Context) (*Runner, error) {
	if b.Proxy == nil {
		return nil, errors.New("runner: builder requires a Proxy")
	}
	if b.State == nil {
		b.State = execstate.New()
	}
	if b.Logger == nil {
		b.Logger = runlog.NewMemory()
	}
	if b.Context == nil {
		b.Context = NoopContext{}
	}
	if b.IPC == nil {
		b.IPC = NoopIPC{}
	}

	raw, err := b.Proxy.Read(b.PipelineName)
	if err != nil {
		return nil, errors.Wrapf(err, "runner: load pipeline %q", b.PipelineName)
	}
	p, err := pipeline.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "runner: parse pipeline %q", b.PipelineName)
	}

	tok := token.Context{
		Variables:           b.Variables,
		Environment:         b.Environment,
		VariableDefaults:    pipeline.DefaultsOf(p.Variables),
		EnvironmentDefaults: p.Environment,
		RunID:               b.RunID,
		RunStartTime:        b.RunStartTime,
	}

	spec := tokenizePlatformSpec(tok, p.RunsOn)

	var servers platform.ServerConfig
	if b.Config != nil {
		servers = b.Config
	}
	plat, err := platform.Resolve(ctx, spec, servers)
	if err != nil {
		return nil, errors.Wrapf(err, "runner: resolve platform for %q", b.PipelineName)
	}

	return &Runner{
		runID:         b.RunID,
		runStartTime:  b.RunStartTime,
		cfg:           b.Config,
		proxy:         b.Proxy,
		pipeline:      p,
		state:         b.State,
		logger:        b.Logger,
		tok:           tok,
		ctxSender:     b.Context,
		ipc:           b.IPC,
		isChild:       b.IsChild,
		platform:      plat,
		platformLabel: spec.String(),
		serverExec:    b.ServerExec,
	}, nil
}

// tokenizePlatformSpec expands every string-valued PlatformSpec field
// against tok, "platform fields" clause.
func tokenizePlatformSpec(tok token.Context, spec pipeline.PlatformSpec) pipeline.PlatformSpec {
	spec.Image = tok.Apply(spec.Image)
	spec.BuildName = tok.Apply(spec.BuildName)
	spec.Tag = tok.Apply(spec.Tag)
	spec.Dockerfile = tok.Apply(spec.Dockerfile)
	spec.Host = tok.Apply(spec.Host)
	spec.User = tok.Apply(spec.User)
	spec.ServerName = tok.Apply(spec.ServerName)
	return spec
}

// Runner executes one pipeline, possibly recursing into sub-pipelines
// built by its own Builder.
type Runner struct {
	runID         string
	runStartTime  time.Time
	cfg           *config.Config
	proxy         fileproxy.Proxy
	pipeline      *pipeline.Pipeline
	state         *execstate.ExecutionState
	logger        *runlog.Sink
	tok           token.Context
	ctxSender     ContextSender
	ipc           IPC
	isChild       bool
	platform      platform.Platform
	platformLabel string
	serverExec    ServerExecClient
}

// RunID returns the run identity this Runner (and every sub-Runner it
// spawns) carries.
func (r *Runner) RunID() string { return r.runID }

// State returns the shared Execution State this Runner mutates (if
// root) or merely observes (if a child).
func (r *Runner) State() *execstate.ExecutionState { return r.state }

// Logger returns the shared output sink every step and sub-pipeline
// writes through.
func (r *Runner) Logger() *runlog.Sink { return r.logger }

// Run drives the START -> INFO -> EXECUTE_PRE_ARTIFACTS -> STEPS ->
// CLEANUP -> TERMINAL state machine to completion.
func (r *Runner) Run(ctx context.Context) error {
	if !r.isChild {
		r.state.Set(execstate.Running)
	}
	r.ctxSender.Publish(Event{RunID: r.runID, Kind: "started"})

	r.logger.Line("Pipeline: %s", r.pipeline.Name)
	r.logger.Line("Runs on: %s", r.platformLabel)

	var runErr error
	if err := r.runArtifacts(ctx, r.pipeline.ArtifactsAfter("")); err != nil {
		runErr = err
	}

	if runErr == nil {
		for _, step := range r.pipeline.Steps {
			if err := r.runStep(ctx, step); err != nil {
				runErr = err
				break
			}
		}
	}

	if runErr != nil {
		if IsCancelled(runErr) {
			r.logger.Line("cancelled: %v", runErr)
		} else {
			r.logger.Line("error: %v", runErr)
		}
	}

	cleanupErr := r.cleanup(ctx)
	finalErr := combineErrors(runErr, cleanupErr)

	if !r.isChild {
		if finalErr != nil {
			r.state.Set(execstate.Faulted)
			r.ctxSender.Publish(Event{RunID: r.runID, Kind: "faulted", Note: finalErr.Error()})
		} else {
			r.state.Set(execstate.Finished)
			r.ctxSender.Publish(Event{RunID: r.runID, Kind: "finished"})
		}
		if err := r.ipc.Completed(r.runID); err != nil {
			r.logger.Line("ipc error reporting completion: %v", err)
		}
	}
	return finalErr
}

// cleanup disposes or keeps the platform alive per the pipeline's
// dispose field; it runs unconditionally regardless of whether the
// execution phase faulted.
func (r *Runner) cleanup(ctx context.Context) error {
	if r.pipeline.Dispose {
		return r.platform.Dispose(ctx, r.isChild)
	}
	return r.platform.KeepAlive(ctx)
}

// runArtifacts executes every complete artifact in arts, aborting the
// run unless the artifact's ignore_errors is set.
func (r *Runner) runArtifacts(ctx context.Context, arts []pipeline.Artifact) error {
	for _, a := range arts {
		if !a.Complete() {
			continue
		}
		from := r.tok.Apply(a.From)
		to := r.tok.Apply(a.To)
		method := pipeline.ArtifactMethod(r.tok.Apply(string(a.Method)))

		var err error
		switch method {
		case pipeline.ArtifactPush:
			err = r.platform.Push(ctx, from, to)
		case pipeline.ArtifactGet:
			err = r.platform.Get(ctx, from, to)
		default:
			err = errors.Errorf("runner: unknown artifact method %q", method)
		}
		if err != nil {
			if a.IgnoreErrors {
				r.logger.Line("artifact error (ignored): %v", err)
				continue
			}
			return err
		}
	}
	return nil
}

// runStep executes one step: its external sub-pipeline references,
// then its commands in order, then any artifacts scheduled after it,
// checking the stop signal at each of the three boundaries.
func (r *Runner) runStep(ctx context.Context, step pipeline.Step) error {
	if step.Name != "" {
		r.logger.Line("Step: %s", r.tok.Apply(step.Name))
	}

	for _, extName := range step.External {
		ext, ok := r.pipeline.ExternalByName(extName)
		if !ok {
			return errors.Errorf("runner: step %q references unknown external %q", step.Name, extName)
		}
		if err := r.runExternal(ctx, ext); err != nil {
			return errors.Wrapf(err, "runner: external %q", ext.Name)
		}
		if r.state.StopRequested() {
			return ErrCancelled
		}
	}

	workingDir := r.tok.Apply(step.WorkingDir)
	for _, cmd := range step.Commands {
		if err := r.platform.Shell(ctx, workingDir, r.tok.Apply(cmd), r.state, r.logger); err != nil {
			return err
		}
		if r.state.StopRequested() {
			return ErrCancelled
		}
	}

	if err := r.runArtifacts(ctx, r.pipeline.ArtifactsAfter(step.Name)); err != nil {
		return err
	}

	if r.state.StopRequested() {
		return ErrCancelled
	}
	return nil
}

// runExternal dispatches a sub-pipeline reference to its local or
// server execution path.
func (r *Runner) runExternal(ctx context.Context, ext pipeline.External) error {
	switch ext.Kind {
	case pipeline.ExternalLocal:
		return r.runLocalExternal(ctx, ext)
	case pipeline.ExternalServer:
		return r.runServerExternal(ctx, ext)
	}
	return errors.Errorf("runner: external %q has no resolved kind", ext.Name)
}

// runLocalExternal recursively builds a child Runner sharing this
// Runner's Execution State, Logger, Context sender and IPC sender, with
// is_child = true, substituting the external's own (already
// token-expanded) variable and environment overrides.
func (r *Runner) runLocalExternal(ctx context.Context, ext pipeline.External) error {
	child, err := Builder{
		RunID:        r.runID,
		RunStartTime: r.runStartTime,
		Config:       r.cfg,
		Proxy:        r.proxy,
		PipelineName: r.tok.Apply(ext.Pipeline),
		State:        r.state,
		Logger:       r.logger,
		Variables:    r.tok.ApplyMap(ext.Variables),
		Environment:  r.tok.ApplyMap(ext.Environment),
		Context:      r.ctxSender,
		IPC:          r.ipc,
		IsChild:      true,
		ServerExec:   r.serverExec,
	}.Build(ctx)
	if err != nil {
		return err
	}
	return child.Run(ctx)
}

// runServerExternal opens a WebSocket-backed sub-run against the
// external's named remote server, relaying its log frames through this
// Runner's own Logger.
func (r *Runner) runServerExternal(ctx context.Context, ext pipeline.External) error {
	if r.serverExec == nil {
		return errors.Errorf("runner: server external targets %q but no server exec client is configured", ext.Server)
	}
	return r.serverExec.RunServer(
		ctx,
		ext.Server,
		r.tok.Apply(ext.Pipeline),
		r.tok.ApplyMap(ext.Variables),
		r.tok.ApplyMap(ext.Environment),
		r.logger,
		r.state,
	)
}
