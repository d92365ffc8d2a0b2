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
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aasemble/cloudctl/pkg/cluster"
	"github.com/aasemble/cloudctl/pkg/errlog"
	"github.com/aasemble/cloudctl/pkg/loader"
	"github.com/aasemble/cloudctl/pkg/pipeline"
)

const (
	spinnerCharSet = 14
	spinnerTick    = 100 * time.Millisecond
)

type applyFlags struct {
	assumeEmpty bool
	namespace   string
	newCluster  bool
	clusterURL  string
	stackFile   string
	cloud       string
	threads     int
}

// NewCmdApply builds the `apply` subcommand: reconcile a stack document
// against a cloud provider, per spec.md §6.
func NewCmdApply() *cobra.Command {
	var f applyFlags
	cmd := &cobra.Command{
		Use:   "apply [SUBST...]",
		Short: "Reconcile a stack document against a cloud provider",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.newCluster && f.clusterURL != "" {
				return fmt.Errorf("--new-cluster and --cluster are mutually exclusive")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			exitOnErr(runApply(&f, args))
		},
	}
	cmd.Flags().BoolVar(&f.assumeEmpty, "assume-empty", false, "Skip detection; apply the stack as if nothing exists yet")
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Only manage resources tagged with this namespace")
	cmd.Flags().BoolVar(&f.newCluster, "new-cluster", false, "Register a new cluster before reconciling")
	cmd.Flags().StringVar(&f.clusterURL, "cluster", "", "Update this existing cluster URL after reconciling")
	cmd.Flags().StringVar(&f.stackFile, "stack", "", "Path to the stack document to apply")
	cmd.Flags().StringVar(&f.cloud, "cloud", "", "Name of the cloud account config to apply against")
	cmd.Flags().IntVar(&f.threads, "threads", 10, "Worker pool size for apply")
	cmd.MarkFlagRequired("stack")
	cmd.MarkFlagRequired("cloud")
	return cmd
}

func runApply(f *applyFlags, substArgs []string) error {
	vars, err := parseSubstitutions(substArgs)
	if err != nil {
		return err
	}

	raw, err := ioutil.ReadFile(f.stackFile)
	if err != nil {
		return errors.Wrapf(err, "reading stack file %s", f.stackFile)
	}

	desired, _, err := loader.Load(raw, vars)
	if err != nil {
		return errors.Wrap(err, "loading stack document")
	}

	drv, err := buildDriver(f.cloud, f.namespace, f.threads)
	if err != nil {
		return errors.Wrap(err, "building driver")
	}

	var clusterClient *cluster.Client
	selfURL := f.clusterURL
	if f.newCluster {
		clusterClient = cluster.NewClient(f.clusterURL)
		selfURL, err = clusterClient.Create()
		if err != nil {
			return errors.Wrap(err, "registering new cluster")
		}
	} else if f.clusterURL != "" {
		clusterClient = cluster.NewClient(f.clusterURL)
	}

	s := spinner.New(spinner.CharSets[spinnerCharSet], spinnerTick)
	s.Suffix = " applying stack..."
	s.Start()
	summaries, err := pipeline.Apply(context.Background(), drv, desired, pipeline.Options{AssumeEmpty: f.assumeEmpty})
	s.Stop()
	if err != nil {
		return errors.Wrap(err, "applying stack")
	}

	for _, sum := range summaries {
		fmt.Printf("%s: %v\n", sum.NodeName, sum.PublicIPs)
	}

	if clusterClient != nil {
		data, err := drv.ClusterData(desired)
		if err != nil {
			return errors.Wrap(err, "building cluster data")
		}
		if err := clusterClient.Update(selfURL, data); err != nil {
			return errors.Wrap(err, "updating cluster")
		}
	}

	return nil
}

func exitOnErr(err error) {
	if err != nil {
		errlog.LogError(err)
		os.Exit(1)
	}
}
