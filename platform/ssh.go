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
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"context"

	"github.com/pipeforge/pipeforge/execstate"
	"github.com/pipeforge/pipeforge/pipeline"
	"github.com/pipeforge/pipeforge/runlog"
)

// Ssh runs commands on a remote host over an SSH session, grounded in
// the same dial/session/combined-output shape backend/runner.go uses
// for its local exec.Command calls, generalized to a remote transport
// via golang.org/x/crypto/ssh.
type Ssh struct {
	client *ssh.Client
}

// NewSsh dials host:port and authenticates per auth.Kind (agent, raw
// key pair, or password), the three SshAuth variants
// describes.
func NewSsh(spec pipeline.PlatformSpec) (*Ssh, error) {
	authMethod, err := sshAuthMethod(spec.Auth)
	if err != nil {
		return nil, err
	}

	port := spec.Port
	if port == 0 {
		port = 22
	}

	cfg := &ssh.ClientConfig{
		User:            spec.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", spec.Host, port), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "ssh: dial")
	}
	return &Ssh{client: client}, nil
}

func sshAuthMethod(auth pipeline.SshAuth) (ssh.AuthMethod, error) {
	switch auth.Kind {
	case pipeline.SshAuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, errors.New("ssh: agent auth requested but SSH_AUTH_SOCK is unset")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, errors.Wrap(err, "ssh: agent dial")
		}
		return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
	case pipeline.SshAuthKeys:
		signer, err := ssh.ParsePrivateKey([]byte(auth.PrivateKey))
		if err != nil {
			return nil, errors.Wrap(err, "ssh: parse private key")
		}
		return ssh.PublicKeys(signer), nil
	case pipeline.SshAuthPassword:
		return ssh.Password(auth.Password), nil
	}
	return nil, errors.Errorf("ssh: unknown auth kind %q", auth.Kind)
}

// Shell runs cmd in a fresh SSH session rooted at workingDir (via a
// leading cd), streaming the remote command's stdout line by line (its
// stderr is not captured), and polling state for a stop request because
// golang.org/x/crypto/ssh has no CommandContext equivalent.
func (s *Ssh) Shell(ctx context.Context, workingDir, cmd string, state *execstate.ExecutionState, out *runlog.Sink) error {
	session, err := s.client.NewSession()
	if err != nil {
		return errors.Wrap(err, "ssh: new session")
	}
	defer session.Close()

	full := cmd
	if workingDir != "" {
		full = fmt.Sprintf("cd %s && %s", workingDir, cmd)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		return err
	}
	session.Stderr = nil
	if err := session.Start(full); err != nil {
		return errors.Wrap(err, "ssh: start")
	}

	done := make(chan error, 1)
	go func() { done <- streamLines(stdout, out) }()

	waitErr := make(chan error, 1)
	go func() { waitErr <- session.Wait() }()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-waitErr:
			<-done
			return err
		case <-ctx.Done():
			session.Signal(ssh.SIGKILL)
			return ctx.Err()
		case <-ticker.C:
			if state != nil && state.StopRequested() {
				session.Signal(ssh.SIGKILL)
				<-waitErr
				<-done
				return errCancelled
			}
		}
	}
}

// Push uses the remote shell itself to write the pushed file via sftp-
// less `cat`, avoiding an additional dependency. Push and Get copy one
// file per call; directories are not supported.
func (s *Ssh) Push(ctx context.Context, from, to string) error {
	return s.copyViaShell(from, to, true)
}

func (s *Ssh) Get(ctx context.Context, from, to string) error {
	return s.copyViaShell(to, from, false)
}

func (s *Ssh) copyViaShell(localPath, remotePath string, toRemote bool) error {
	session, err := s.client.NewSession()
	if err != nil {
		return errors.Wrap(err, "ssh: new session")
	}
	defer session.Close()

	if toRemote {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return err
		}
		session.Stdin = bytes.NewReader(data)
		return session.Run(fmt.Sprintf("cat > %s", remotePath))
	}

	out, err := session.Output(fmt.Sprintf("cat %s", remotePath))
	if err != nil {
		return errors.Wrap(err, "ssh: remote cat")
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, out, 0o644)
}

func (s *Ssh) Dispose(ctx context.Context, isChild bool) error {
	if isChild {
		return nil
	}
	return s.client.Close()
}

func (s *Ssh) KeepAlive(ctx context.Context) error {
	_, _, err := s.client.SendRequest("keepalive@pipeforge", true, nil)
	return err
}
