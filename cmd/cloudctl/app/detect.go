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
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type detectFlags struct {
	namespace string
	cloud     string
	asJSON    bool
	threads   int
}

// NewCmdDetect builds the `detect` subcommand: print the driver's currently
// detected topology, per spec.md §6.
func NewCmdDetect() *cobra.Command {
	var f detectFlags
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print the cloud provider's currently detected topology",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			exitOnErr(runDetect(&f))
		},
	}
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Only detect resources tagged with this namespace")
	cmd.Flags().StringVar(&f.cloud, "cloud", "", "Name of the cloud account config to detect against")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the detected topology as JSON instead of a text summary")
	cmd.Flags().IntVar(&f.threads, "threads", 10, "Worker pool size for detection")
	cmd.MarkFlagRequired("cloud")
	return cmd
}

func runDetect(f *detectFlags) error {
	drv, err := buildDriver(f.cloud, f.namespace, f.threads)
	if err != nil {
		return errors.Wrap(err, "building driver")
	}

	coll, err := drv.DetectResources(context.Background())
	if err != nil {
		return errors.Wrap(err, "detecting resources")
	}

	if f.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(coll.AsMap())
	}

	for _, n := range coll.Nodes.Values() {
		fmt.Printf("node: %s\n", n.ResourceName())
	}
	for _, g := range coll.SecurityGroups.Values() {
		fmt.Printf("security group: %s\n", g.ResourceName())
	}
	for _, r := range coll.SecurityGroupRules.Values() {
		fmt.Printf("security group rule: %v\n", r.AsMap())
	}
	return nil
}
