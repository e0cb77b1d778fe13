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

package server

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"path/filepath"

	"github.com/pipeforge/pipeforge/fileproxy"
	"github.com/pipeforge/pipeforge/store"
)

// handleList serves `GET /list`: every pipeline name the configured
// Proxy currently holds.
func (s *Server) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := s.Proxy.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, names)
	}
}

// pushRequest is the `POST /push` body: a pipeline name plus its raw
// YAML content.
type pushRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// handlePush serves `POST /push`, storing content under name through
// the Proxy.
func (s *Server) handlePush() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if err := s.Proxy.Write(req.Name, []byte(req.Content)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// handlePull serves `GET /pull?name=...`, returning a pipeline's raw
// YAML content byte-identical to what Push stored.
func (s *Server) handlePull() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		content, err := s.Proxy.Read(name)
		if err == fileproxy.ErrNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, pushRequest{Name: name, Content: string(content)})
	}
}

type removeRequest struct {
	Name string `json:"name"`
}

// handleRemove serves `POST /remove`.
func (s *Server) handleRemove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req removeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if err := s.Proxy.Remove(req.Name); err == fileproxy.ErrNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

type stopRequest struct {
	RunID string `json:"run_id"`
}

type stopResponse struct {
	RunID  string `json:"run_id"`
	Signal bool   `json:"signalled"`
}

// handleStop serves `POST /stop`. It always persists the sticky
// stop_requested flag, then tries, in order, the
// in-process Exec session registry and the Worker Queue's registry —
// whichever one actually holds a live run for run_id.
func (s *Server) handleStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stopRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.RunID == "" {
			http.Error(w, "run_id is required", http.StatusBadRequest)
			return
		}
		if err := s.Store.RequestStop(r.Context(), req.RunID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if s.HA != nil && s.HA.IsLeader() {
			s.HA.ApplyRequestStop(r.Context(), req.RunID)
		}
		signalled := s.Active.RequestStop(req.RunID)
		if !signalled && s.Supervisor != nil {
			signalled, _ = s.Supervisor.StopRun(r.Context(), req.RunID)
		}
		writeJSON(w, http.StatusOK, stopResponse{RunID: req.RunID, Signal: signalled})
	}
}

// handleHist serves `GET /hist?name=&state=&limit=`, the run-record
// history table.
func (s *Server) handleHist() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.RunFilter{Name: q.Get("name"), State: store.RunState(q.Get("state"))}
		if v := q.Get("limit"); v != "" {
			if n, err := parseLimit(v); err == nil {
				filter.Limit = n
			}
		}
		runs, err := s.Store.ListRuns(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// inspectResponse bundles a run record with its accumulated log, the
// `GET /inspect` payload.
type inspectResponse struct {
	Run *store.RunRecord `json:"run"`
	Log string            `json:"log"`
}

// handleInspect serves `GET /inspect?id=...`.
func (s *Server) handleInspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		rec, err := s.Store.GetRun(r.Context(), id)
		if err == store.ErrNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		logContent, _ := ioutil.ReadFile(filepath.Join(s.LogsDir, id+".log"))
		writeJSON(w, http.StatusOK, inspectResponse{Run: rec, Log: string(logContent)})
	}
}

// handleDeps serves `GET /deps?pipeline=...`, the dependency graph a
// pipeline's External references form (server/deps.go).
func (s *Server) handleDeps() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("pipeline")
		if name == "" {
			http.Error(w, "pipeline is required", http.StatusBadRequest)
			return
		}
		graph, err := resolveDeps(s.Proxy, name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, graph)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
