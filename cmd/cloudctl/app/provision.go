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

package app

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aasemble/cloudctl/pkg/journal"
	"github.com/aasemble/cloudctl/pkg/loader"
	"github.com/aasemble/cloudctl/pkg/provision"
	"github.com/aasemble/cloudctl/pkg/resource"
	"github.com/aasemble/cloudctl/pkg/shell"
)

type provisionFlags struct {
	namespace  string
	cloud      string
	stackFile  string
	stepsFile  string
	journal    string
	suffix     string
	retryCount int
	router     string
	publicKey  string
}

// NewCmdProvision builds the `provision` subcommand: the stateful OpenStack
// provisioning runner of spec.md §4.G, an alternative entry point to the
// reconciliation pipeline used by `apply`/`detect`/`clean`.
func NewCmdProvision() *cobra.Command {
	var f provisionFlags
	cmd := &cobra.Command{
		Use:   "provision [SUBST...]",
		Short: "Run the stateful OpenStack provisioning pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			exitOnErr(runProvision(&f, args))
		},
	}
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Only manage resources tagged with this namespace")
	cmd.Flags().StringVar(&f.cloud, "cloud", "", "Name of the openstack cloud account config to provision against")
	cmd.Flags().StringVar(&f.stackFile, "stack", "", "Path to the stack document (networks/securitygroups/nodes)")
	cmd.Flags().StringVar(&f.stepsFile, "steps", "", "Path to a document with a `steps` list to run after provisioning")
	cmd.Flags().StringVar(&f.journal, "journal", "cloudctl.journal", "Path to the resource journal file")
	cmd.Flags().StringVar(&f.suffix, "suffix", "", "Suffix appended to every created resource name")
	cmd.Flags().IntVar(&f.retryCount, "retry-count", 1, "Retry budget seeded onto every provisioned node")
	cmd.Flags().StringVar(&f.router, "router", "", "Name of an existing router new subnets should attach to")
	cmd.Flags().StringVar(&f.publicKey, "public-key", "", "Path to a public key to register as a keypair before provisioning")
	cmd.MarkFlagRequired("cloud")
	cmd.MarkFlagRequired("stack")
	return cmd
}

func runProvision(f *provisionFlags, substArgs []string) error {
	vars, err := parseSubstitutions(substArgs)
	if err != nil {
		return err
	}

	raw, err := ioutil.ReadFile(f.stackFile)
	if err != nil {
		return errors.Wrapf(err, "reading stack file %s", f.stackFile)
	}
	desired, networks, err := loader.Load(raw, vars)
	if err != nil {
		return errors.Wrap(err, "loading stack document")
	}

	var steps []shell.Step
	if f.stepsFile != "" {
		stepsRaw, err := ioutil.ReadFile(f.stepsFile)
		if err != nil {
			return errors.Wrapf(err, "reading steps file %s", f.stepsFile)
		}
		steps, err = loader.LoadSteps(stepsRaw, vars)
		if err != nil {
			return errors.Wrap(err, "loading steps document")
		}
	}

	drv, err := provisionDriver(f.cloud, f.namespace, 10)
	if err != nil {
		return err
	}

	j, err := journal.Open(f.journal)
	if err != nil {
		return err
	}
	defer j.Close()

	runner := provision.NewRunner(drv, j, provision.Config{
		Suffix:       f.suffix,
		RetryCount:   f.retryCount,
		PollInterval: 5 * time.Second,
		RouterName:   f.router,
	})

	if f.publicKey != "" {
		pub, err := ioutil.ReadFile(f.publicKey)
		if err != nil {
			return errors.Wrapf(err, "reading public key %s", f.publicKey)
		}
		if _, err := runner.RegisterKeyPair(context.Background(), pub, "cloudctl"); err != nil {
			return errors.Wrap(err, "registering keypair")
		}
	}

	s := spinner.New(spinner.CharSets[spinnerCharSet], spinnerTick)
	s.Suffix = " provisioning..."
	s.Start()
	err = runner.Provision(context.Background(), desired, networks)
	s.Stop()
	if err != nil {
		return errors.Wrap(err, "provisioning")
	}

	stepRunner := &shell.StepRunner{Nodes: nodeMap(desired)}
	for _, step := range steps {
		if err := stepRunner.RunStep(context.Background(), step); err != nil {
			return errors.Wrap(err, "running step")
		}
	}

	return nil
}

func nodeMap(coll *resource.Collection) map[string]*resource.Node {
	m := make(map[string]*resource.Node, coll.Nodes.Len())
	for _, named := range coll.Nodes.Values() {
		n := named.(*resource.Node)
		m[n.Name] = n
	}
	return m
}
