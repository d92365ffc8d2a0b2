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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aasemble/cloudctl/pkg/errlog"
)

var logFile string

func init() {
	RootCmd.PersistentFlags().BoolVarP(&errlog.DebugOutput, "debug", "d", false, "Enable debug output (includes stack traces)")
	RootCmd.PersistentFlags().Var(&errlog.LogLevel, "log-level", "Log level (panic, fatal, error, warn, info, debug, trace)")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Tee structured log output to this file in addition to stderr")
	RootCmd.PersistentFlags().String("clouds-dir", defaultCloudsDir(), "Directory holding <name>.cfg cloud account configs")
	viper.BindPFlag("clouds-dir", RootCmd.PersistentFlags().Lookup("clouds-dir"))

	RootCmd.AddCommand(NewCmdApply())
	RootCmd.AddCommand(NewCmdDetect())
	RootCmd.AddCommand(NewCmdClean())
	RootCmd.AddCommand(NewCmdProvision())
	RootCmd.AddCommand(NewCmdVersion())
}

// RootCmd is the root command that is executed when cloudctl is run without
// any subcommands.
var RootCmd = &cobra.Command{
	Use:   "cloudctl",
	Short: "Reconcile declarative cloud infrastructure stacks",
	Long:  "cloudctl reconciles a declarative stack document against a cloud provider's detected topology: nodes, security groups and rules, and (via the OpenStack provisioning runner) networks and volumes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := errlog.SetLevel(string(errlog.LogLevel)); err != nil {
			return err
		}
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return err
			}
			errlog.AddFileHook(f)
		}
		return nil
	},
	Run: rootCmd,
}

func rootCmd(cmd *cobra.Command, args []string) {
	// cloudctl does nothing when not given a subcommand.
	cmd.Help()
	os.Exit(2)
}
