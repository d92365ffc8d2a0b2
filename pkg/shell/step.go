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
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aasemble/cloudctl/pkg/resource"
)

// Step is a single declared shell step: its script body, execution policy,
// and whether it runs locally or over SSH against a named node.
type Step struct {
	Script        string
	Environment   map[string]string // literal key=value pairs; values starting with "$" resolve from the process env
	Type          string            // "local" (default) or "remote"
	Node          string            // node to SSH to, when Type == "remote"
	RetryIfFails  bool
	Timeout       time.Duration
	RetryDelay    time.Duration
	TotalTimeout  time.Duration
}

// StepRunner executes Steps against a known set of nodes, building the
// ALL_NODES / AASEMBLE_<node>_<net>_fixed environment prefix described in
// spec.md §4.G.
type StepRunner struct {
	Nodes map[string]*resource.Node
}

// buildEnvPrefix constructs the "KEY=VALUE KEY=VALUE ..." prefix prepended
// to the shell command: ALL_NODES first, then one AASEMBLE_<node>_<net>_fixed
// per exported node/port, then the step's literal environment pairs (with
// "$"-prefixed values resolved against the process environment).
func (r *StepRunner) buildEnvPrefix(step Step) string {
	var names []string
	for name := range r.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var pairs []string
	pairs = append(pairs, fmt.Sprintf("ALL_NODES=%q", strings.Join(names, " ")))

	for _, name := range names {
		n := r.Nodes[name]
		if !n.Export {
			continue
		}
		for _, p := range n.Ports {
			if p.FixedIP == "" {
				continue
			}
			key := fmt.Sprintf("AASEMBLE_%s_%s_fixed", name, p.NetworkName)
			pairs = append(pairs, fmt.Sprintf("%s=%q", key, p.FixedIP))
		}
	}

	var envKeys []string
	for k := range step.Environment {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		v := step.Environment[k]
		if strings.HasPrefix(v, "$") {
			v = os.Getenv(strings.TrimPrefix(v, "$"))
		}
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, v))
	}

	return strings.Join(pairs, " ")
}

// buildShellCmd returns the process command line to spawn: "{env} bash"
// locally, or the SSH-wrapped form against the step's node's first
// floating IP remotely.
func (r *StepRunner) buildShellCmd(step Step) (string, error) {
	env := r.buildEnvPrefix(step)
	if step.Type != "remote" {
		return fmt.Sprintf("%s bash", env), nil
	}

	n, ok := r.Nodes[step.Node]
	if !ok {
		return "", fmt.Errorf("remote step references unknown node %q", step.Node)
	}
	var fip string
	for _, p := range n.Ports {
		if p.FloatingIP != "" {
			fip = p.FloatingIP
			break
		}
	}
	if fip == "" {
		return "", fmt.Errorf("node %q has no floating ip for remote step", step.Node)
	}
	return fmt.Sprintf("ssh -o StrictHostKeyChecking=no ubuntu@%s %q", fip, env+" bash"), nil
}

// RunStep executes step per the retry/timeout/total-timeout algorithm of
// spec.md §4.G: compute deadline = min(now+timeout, total_deadline); invoke
// once; on failure, retry after retry-delay if enabled; on timeout, retry
// only if there's still time left before the total deadline; otherwise
// propagate immediately.
func (r *StepRunner) RunStep(ctx context.Context, step Step) error {
	shellCmd, err := r.buildShellCmd(step)
	if err != nil {
		return err
	}

	start := time.Now()
	var totalDeadline time.Time
	if step.TotalTimeout > 0 {
		totalDeadline = start.Add(step.TotalTimeout)
	}

	for {
		deadline := time.Now().Add(step.Timeout)
		if !totalDeadline.IsZero() && totalDeadline.Before(deadline) {
			deadline = totalDeadline
		}

		runCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			runCtx, cancel = context.WithDeadline(ctx, deadline)
		}
		inv := &Invocation{ShellCmd: shellCmd, Script: step.Script}
		err := inv.Run(runCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}

		if _, timedOut := err.(*CommandTimedOutException); timedOut {
			if step.RetryIfFails && !totalDeadline.IsZero() && time.Now().Add(step.RetryDelay).Before(totalDeadline) {
				logrus.WithField("step", shellCmd).Debug("shell step timed out, retrying")
				time.Sleep(step.RetryDelay)
				continue
			}
			return err
		}

		// CommandFailedException or any other error.
		if step.RetryIfFails {
			logrus.WithError(err).WithField("step", shellCmd).Debug("shell step failed, retrying")
			time.Sleep(step.RetryDelay)
			continue
		}
		return err
	}
}
