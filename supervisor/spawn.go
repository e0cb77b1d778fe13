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

package supervisor

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ackGracePeriod bounds how long a spawned worker has to dial
// /ws-worker/ and send its Ack before the supervisor gives up on it,
// grounded on backend/dispatcher.go's probeRunner heartbeat watchdog.
const ackGracePeriod = 30 * time.Second

const ackWatchdogInterval = 1 * time.Second

// Spawner starts one `pipeforge worker` subprocess per admitted Job,
// generalizing core/pool.go's container-per-commit spawn into a
// subprocess-per-run spawn. Each subprocess's stdout and
// stderr are redirected to a per-run file under LogsDir rather than
// inherited, since several may run concurrently.
type Spawner struct {
	BinaryPath string
	ConfigPath string
	LogsDir    string
	Registry   *registry
	Queue      *Queue
	Logger     *log.Logger
}

// Dispatch implements the Dispatch func Queue.Enqueue/Release invoke.
func (s *Spawner) Dispatch(job Job) error {
	s.Registry.register(job.RunID)

	args := []string{"worker",
		"--pipeline", job.Pipeline,
		"--run-id", job.RunID,
		"--config", s.ConfigPath,
	}
	for k, v := range job.Variables {
		args = append(args, "--variable", fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range job.Environment {
		args = append(args, "--environment", fmt.Sprintf("%s=%s", k, v))
	}

	cmd := exec.Command(s.BinaryPath, args...)
	logFile, err := os.Create(filepath.Join(s.LogsDir, job.RunID+".worker.log"))
	if err != nil {
		s.Registry.remove(job.RunID)
		s.Queue.Release(job.RunID)
		return fmt.Errorf("supervisor: create worker log for %s: %w", job.RunID, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		s.Registry.remove(job.RunID)
		s.Queue.Release(job.RunID)
		return fmt.Errorf("supervisor: start worker for %s: %w", job.RunID, err)
	}

	go s.watchAck(job.RunID, cmd)
	go func() {
		cmd.Wait()
		logFile.Close()
		s.Registry.remove(job.RunID)
		s.Queue.Release(job.RunID)
	}()
	return nil
}

// watchAck kills cmd's process if job.RunID never Acks within
// ackGracePeriod, freeing its slot immediately rather than waiting for
// a hung subprocess's own exit.
func (s *Spawner) watchAck(runID string, cmd *exec.Cmd) {
	deadline := time.Now().Add(ackGracePeriod)
	ticker := time.NewTicker(ackWatchdogInterval)
	defer ticker.Stop()
	for range ticker.C {
		if s.Registry.acked(runID) {
			return
		}
		if time.Now().After(deadline) {
			if s.Logger != nil {
				s.Logger.Printf("supervisor: worker %s never acked within %s, killing", runID, ackGracePeriod)
			}
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			return
		}
	}
}
