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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aasemble/cloudctl/pkg/pipeline"
)

type cleanFlags struct {
	namespace string
	threads   int
}

// NewCmdClean builds the `clean` subcommand: delete every resource the
// driver currently detects, per spec.md §6.
func NewCmdClean() *cobra.Command {
	var f cleanFlags
	cmd := &cobra.Command{
		Use:   "clean CLOUD",
		Short: "Delete everything the cloud provider's driver detects",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			exitOnErr(runClean(&f, args[0]))
		},
	}
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Only clean resources tagged with this namespace")
	cmd.Flags().IntVar(&f.threads, "threads", 10, "Worker pool size for clean")
	return cmd
}

func runClean(f *cleanFlags, cloud string) error {
	drv, err := buildDriver(cloud, f.namespace, f.threads)
	if err != nil {
		return errors.Wrap(err, "building driver")
	}
	if err := pipeline.Clean(context.Background(), drv); err != nil {
		return errors.Wrap(err, "cleaning resources")
	}
	fmt.Printf("cloud %s cleaned\n", cloud)
	return nil
}
