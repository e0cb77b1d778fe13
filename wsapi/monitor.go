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
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pipeforge/pipeforge/scanner"
	"github.com/pipeforge/pipeforge/store"
)

const (
	monitorHeartbeatInterval = 500 * time.Millisecond
	monitorPollInterval      = 1 * time.Second
	monitorPongTimeout       = 10 * time.Second
)

// MonitorServer holds the dependencies every /ws-monit/ connection
// needs to resolve and follow a run record.
type MonitorServer struct {
	Store   *store.Store
	LogsDir string
}

// ServeHTTP upgrades the connection, resolves the requested run, then
// streams its log until the run terminates or the heartbeat times out.
func (m *MonitorServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var info MonitInfo
	if err := conn.ReadJSON(&info); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "expected a MonitInfo frame"))
		return
	}

	rec, err := m.resolve(r.Context(), info)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, err.Error()))
		return
	}

	var lastPong sync.Mutex
	pongAt := time.Now()
	conn.SetPongHandler(func(string) error {
		lastPong.Lock()
		pongAt = time.Now()
		lastPong.Unlock()
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	scn := scanner.New(filepath.Join(m.LogsDir, rec.ID+".log"))
	heartbeat := time.NewTicker(monitorHeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(monitorPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			lastPong.Lock()
			since := time.Since(pongAt)
			lastPong.Unlock()
			if since > monitorPongTimeout {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "heartbeat timeout"))
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			lines, err := scn.Poll()
			if err != nil {
				continue
			}
			for _, line := range lines {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
					return
				}
			}
		case <-poll.C:
			current, err := m.Store.GetRun(r.Context(), rec.ID)
			if err != nil {
				lines, _ := scn.Poll()
				for _, line := range lines {
					conn.WriteMessage(websocket.TextMessage, []byte(line))
				}
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
				return
			}
			if current.State != store.RunRunning {
				lines, _ := scn.Poll()
				for _, line := range lines {
					conn.WriteMessage(websocket.TextMessage, []byte(line))
				}
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(current.State)))
				return
			}
		}
	}
}

// resolve picks a run record from a MonitInfo frame, trying last, then
// id, then name in that order.
func (m *MonitorServer) resolve(ctx context.Context, info MonitInfo) (*store.RunRecord, error) {
	switch {
	case info.Last:
		return m.Store.LastRun(ctx)
	case info.ID != "":
		return m.Store.GetRun(ctx, info.ID)
	case info.Name != "":
		return m.Store.LastRunByName(ctx, info.Name)
	default:
		return nil, fmt.Errorf("wsapi: MonitInfo names none of last/id/name")
	}
}
