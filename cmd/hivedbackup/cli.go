// MIT License
//
// Copyright (c) Microsoft Corporation. All rights reserved.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE

package main

import (
	"flag"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "./hivedbackup.yaml"

type command interface {
	registerFlags() *cobra.Command
	run(cmd *cobra.Command, args []string) error
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          api.ComponentName,
		Short:        api.ComponentName + " admits tenant requests with fault-tolerant backups on a fat-tree",
		SilenceUsage: true,
	}
	// klog flags, e.g. -v=4
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	addCmd(rootCmd, &simulateCmd{})
	addCmd(rootCmd, &validateCmd{})
	return rootCmd
}

func addCmd(rootCmd *cobra.Command, cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(innerCmd, args)
	}
	rootCmd.AddCommand(cobraCmd)
}

func addConfigFlag(fs *pflag.FlagSet, configPath *string) {
	fs.StringVar(configPath, "config", defaultConfigPath,
		"config file path, fields can be overridden by "+api.EnvPrefix+"_<SECTION>_<FIELD> environment variables")
}
