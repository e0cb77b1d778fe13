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

package wsapi

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/runlog"
)

// stopPollInterval matches platform.Machine's pollInterval, the
// cadence at which a long-running operation rechecks the shared
// Execution State's stop flag.
const stopPollInterval = 500 * time.Millisecond

// ExecClient implements runner.ServerExecClient, dialing a named
// server's /ws-exec/ endpoint on behalf of a server External reference
// and relaying its log frames into the parent Runner's
// own Logger until the remote closes or the shared Execution State's
// stop flag trips.
type ExecClient struct {
	Config *config.Config
}

// RunServer dials server, submits pipelineName with the given
// variables/environment, and streams the remote run's log lines into out.
func (c *ExecClient) RunServer(ctx context.Context, server, pipelineName string,
	variables, environment map[string]string, out *runlog.Sink, state *execstate.ExecutionState) error {
	target, ok := c.Config.ServerURLByName(server)
	if !ok {
		return errors.Errorf("wsapi: unknown server %q", server)
	}

	header := make(map[string][]string)
	if target.Token != "" {
		header["Authorization"] = []string{"Bearer " + target.Token}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.URL+"/ws-exec/", header)
	if err != nil {
		return errors.Wrapf(err, "wsapi: dial server %q", server)
	}
	defer conn.Close()

	if err := conn.WriteJSON(RunInfo{
		Pipeline:    pipelineName,
		Variables:   variables,
		Environment: environment,
	}); err != nil {
		return errors.Wrap(err, "wsapi: send RunInfo")
	}

	stopWatch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(stopPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stopWatch:
				return
			case <-ticker.C:
				if state.StopRequested() {
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop requested"))
					return
				}
			}
		}
	}()
	defer close(stopWatch)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("wsapi: remote run %q on %q: %w", pipelineName, server, err)
		}
		if msgType == websocket.TextMessage {
			out.Line("%s", string(data))
		}
	}
}
