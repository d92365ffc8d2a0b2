/*
Copyright 2018 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// CommandFailedException is raised when a command exits non-zero.
type CommandFailedException struct {
	Command  string
	ExitCode int
}

func (e *CommandFailedException) Error() string {
	return fmt.Sprintf("command %q failed with exit code %d", e.Command, e.ExitCode)
}

// CommandTimedOutException is raised when a command's deadline expires.
type CommandTimedOutException struct {
	Command string
}

func (e *CommandTimedOutException) Error() string {
	return fmt.Sprintf("command %q timed out", e.Command)
}

// Invocation is a single shell step run: ShellCmd is the process to spawn
// (e.g. "FOO=bar bash" locally, or "ssh -o StrictHostKeyChecking=no
// ubuntu@1.2.3.4 \"FOO=bar bash\"" remotely, per spec.md §4.G), and Script is
// the actual command text fed to that process's stdin.
type Invocation struct {
	ShellCmd string
	Script   string
}

// Run spawns ShellCmd under /bin/sh -c, feeding it Script (plus a trailing
// newline) to stdin one small write at a time.
//
// The source feeds stdin one character at a time via a select() loop so a
// script body larger than the pipe buffer never blocks before the child has
// started reading. Go's os/exec doesn't expose select() on a pipe directly;
// the idiomatic substitute is a goroutine writing on a ticker against the
// StdinPipe, which preserves the same "never block the caller on a full
// buffer" property (spec.md §9).
func (inv *Invocation) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", inv.ShellCmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	payload := []byte(inv.Script + "\n")
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- feedStdin(stdin, payload)
	}()

	err = cmd.Wait()
	if werr := <-writeErr; werr != nil && werr != io.ErrClosedPipe {
		logrus.WithError(werr).Debug("error feeding stdin to shell step")
	}

	if ctx.Err() == context.DeadlineExceeded {
		return &CommandTimedOutException{Command: inv.ShellCmd}
	}
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &CommandFailedException{Command: inv.ShellCmd, ExitCode: exitCode}
	}
	return nil
}

// feedStdin writes payload to w a byte at a time, matching the source's
// select()-loop that polls every 1s for the pipe to accept more without ever
// blocking on a full buffer; since Go's stdin pipe write blocks only until
// the child drains it (not for a full second), a short fixed interval
// between writes preserves the same never-block-on-a-full-buffer property
// without reproducing the source's 1s granularity, which existed only to
// bound a blocking select() call. It stops early if w closes.
func feedStdin(w io.WriteCloser, payload []byte) error {
	defer w.Close()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for _, b := range payload {
		<-ticker.C
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}
	return nil
}
