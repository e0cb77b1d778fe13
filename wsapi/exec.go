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
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pipeforge/pipeforge/config"
	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/runlog"
	"github.com/pipeforge/pipeforge/runner"
	"github.com/pipeforge/pipeforge/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ActiveRuns lets a server register an in-process run's Execution
// State so a `/stop` request landing on a different connection than
// the one that started the run can still reach it directly, mirroring
// the Worker Queue's registry for subprocess-backed runs.
type ActiveRuns interface {
	Register(runID string, state *execstate.ExecutionState)
	Unregister(runID string)
}

// ExecServer holds the dependencies every /ws-exec/ connection needs to
// construct and run a root Runner.
type ExecServer struct {
	Store      *store.Store
	Proxy      fileproxy.Proxy
	Config     *config.Config
	LogsDir    string
	ServerExec runner.ServerExecClient
	Active     ActiveRuns
}

// ServeHTTP upgrades the connection, reads the single RunInfo frame,
// and drives a Runner to completion, fanning its log out to disk and to
// the socket simultaneously.
func (e *ExecServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var info RunInfo
	if err := conn.ReadJSON(&info); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "expected a RunInfo frame"))
		return
	}

	runID := uuid.NewString()
	startTime := time.Now()

	sink, err := runlog.NewFile(filepath.Join(e.LogsDir, runID+".log"))
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "could not open run log"))
		return
	}
	defer sink.Close()
	sink.Tee(&lineFrameWriter{conn: conn})

	if err := e.Store.CreateRun(r.Context(), &store.RunRecord{
		ID:        runID,
		Name:      info.Pipeline,
		State:     store.RunQueued,
		StartTime: startTime,
	}); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "could not create run record"))
		return
	}

	state := execstate.New()
	if e.Active != nil {
		e.Active.Register(runID, state)
		defer e.Active.Unregister(runID)
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go watchForDisconnect(conn, state, cancel)

	rn, err := runner.Builder{
		RunID:        runID,
		RunStartTime: startTime,
		Config:       e.Config,
		Proxy:        e.Proxy,
		PipelineName: info.Pipeline,
		State:        state,
		Logger:       sink,
		Variables:    info.Variables,
		Environment:  info.Environment,
		Context:      store.RunRecordSink{Store: e.Store},
		ServerExec:   e.ServerExec,
	}.Build(ctx)
	if err != nil {
		sink.Line("error: %v", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}

	runErr := rn.Run(ctx)
	closeCode := websocket.CloseNormalClosure
	closeText := "run finished"
	if runErr != nil {
		closeCode = websocket.CloseInternalServerErr
		closeText = runErr.Error()
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, closeText))
}

// watchForDisconnect blocks on reads from conn (the client sends
// nothing further after RunInfo, so any read returning is either a
// close frame or a transport error) and requests a stop plus cancels
// ctx the moment the client goes away, "on client
// disconnect, set the Execution State's stop flag."
func watchForDisconnect(conn *websocket.Conn, state *execstate.ExecutionState, cancel context.CancelFunc) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			state.RequestStop()
			cancel()
			return
		}
	}
}

// lineFrameWriter adapts runlog.Sink's Tee to a WebSocket connection:
// each Write call (one per Sink.Line invocation) becomes exactly one
// text frame, matching "one line per frame."
type lineFrameWriter struct {
	conn *websocket.Conn
}

func (f *lineFrameWriter) Write(p []byte) (int, error) {
	line := bytes.TrimSuffix(p, []byte("\n"))
	if err := f.conn.WriteMessage(websocket.TextMessage, line); err != nil {
		return 0, err
	}
	return len(p), nil
}
