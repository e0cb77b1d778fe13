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

package ha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/hashicorp/raft"

	"github.com/pipeforge/pipeforge/store"
)

// transportTimeout bounds a single Raft RPC round trip over the TCP
// transport bound to ha_bind_address.
const transportTimeout = 10 * time.Second

// Peer names one member of the static Raft configuration, sourced
// from the config's ha_peers list at boot.
type Peer struct {
	NodeID  string
	Address string
	Voter   bool
}

// Coordinator runs a Raft group over the run-record table. A
// Coordinator only exists when ha_enabled is true; its methods are not
// nil-safe, so components holding an optional *Coordinator check for
// nil before calling in.
type Coordinator struct {
	raft  *raft.Raft
	fsm   *FSM
	store *store.Store

	nodeID  string
	address string
}

// New starts a Raft node bound to bindAddress, identified by nodeID,
// with the given static peer set as its initial configuration. It only
// bootstraps the cluster if the log store is empty, so a restart
// rejoins the existing group instead of re-electing from scratch.
// logOutput defaults to os.Stderr when nil.
func New(nodeID, bindAddress string, peers []Peer, st *store.Store, logOutput io.Writer) (*Coordinator, error) {
	if logOutput == nil {
		logOutput = os.Stderr
	}
	fsm := NewFSM(st)

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(nodeID)
	cfg.LogOutput = logOutput

	addr, err := net.ResolveTCPAddr("tcp", bindAddress)
	if err != nil {
		return nil, fmt.Errorf("ha: resolve bind address %q: %w", bindAddress, err)
	}
	transport, err := raft.NewTCPTransport(bindAddress, addr, 3, transportTimeout, logOutput)
	if err != nil {
		return nil, fmt.Errorf("ha: tcp transport: %w", err)
	}

	logStore := st.LogStore()
	stableStore := st.StableStore()
	snapshotStore := st.SnapshotStore()

	hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
	if err != nil {
		return nil, fmt.Errorf("ha: check existing state: %w", err)
	}
	if !hasState {
		servers := make([]raft.Server, len(peers))
		for i, p := range peers {
			suffrage := raft.Voter
			if !p.Voter {
				suffrage = raft.Nonvoter
			}
			servers[i] = raft.Server{ID: raft.ServerID(p.NodeID), Address: raft.ServerAddress(p.Address), Suffrage: suffrage}
		}
		bootCfg := raft.Configuration{Servers: servers}
		if err := raft.BootstrapCluster(cfg, logStore, stableStore, snapshotStore, transport, bootCfg); err != nil {
			return nil, fmt.Errorf("ha: bootstrap: %w", err)
		}
	}

	r, err := raft.NewRaft(cfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("ha: new raft: %w", err)
	}

	return &Coordinator{raft: r, fsm: fsm, store: st, nodeID: nodeID, address: bindAddress}, nil
}

// IsLeader reports whether the local node currently holds leadership.
func (c *Coordinator) IsLeader() bool {
	return c.raft.State() == raft.Leader
}

// Leader returns the current leader's address, if known.
func (c *Coordinator) Leader() string {
	return string(c.raft.Leader())
}

// LastIndex reports the last index applied to the local FSM, the value
// a read operation reports alongside its result ("read
// operations serve from local state with the last-applied index
// reported to the caller").
func (c *Coordinator) LastIndex() uint64 {
	return c.raft.AppliedIndex()
}

// LeaderCh exposes raft.Raft's own leadership-change channel, the feed
// a /ws-ha/ handler relays to connected clients.
func (c *Coordinator) LeaderCh() <-chan bool {
	return c.raft.LeaderCh()
}

// ErrNotLeader is returned by Apply* when the local node is not the
// Raft leader; callers forward the original request to Leader()
// instead ("state-changing RPCs are redirected to the
// leader").
var ErrNotLeader = fmt.Errorf("ha: not the leader")

// ApplyCreate replicates a run creation through Raft, returning once committed.
func (c *Coordinator) ApplyCreate(ctx context.Context, runID, name string) error {
	return c.apply(Command{Kind: CommandCreate, RunID: runID, Name: name})
}

// ApplySetState replicates a run state transition through Raft.
func (c *Coordinator) ApplySetState(ctx context.Context, runID string, state store.RunState) error {
	return c.apply(Command{Kind: CommandSetState, RunID: runID, State: state})
}

// ApplyRequestStop replicates a stop request through Raft.
func (c *Coordinator) ApplyRequestStop(ctx context.Context, runID string) error {
	return c.apply(Command{Kind: CommandRequestStop, RunID: runID})
}

func (c *Coordinator) apply(cmd Command) error {
	if c.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("ha: encode command: %w", err)
	}
	future := c.raft.Apply(data, transportTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("ha: apply: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return fmt.Errorf("ha: fsm apply: %w", err)
		}
	}
	return nil
}

// Shutdown stops the Raft node, waiting for it to complete.
func (c *Coordinator) Shutdown() error {
	return c.raft.Shutdown().Error()
}
