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
	"fmt"

	"github.com/microsoft/hivedbackup/pkg/algorithm"
	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/spf13/cobra"
)

type validateCmd struct {
	configPath string
	showLinks  bool
}

type topologyDescription struct {
	Nodes      map[string]int     `yaml:"nodes"`
	VMSlots    int32              `yaml:"vmSlots"`
	Height     int32              `yaml:"height"`
	FaultLevel string             `yaml:"faultLevel"`
	Links      []api.LinkStatus   `yaml:"links,omitempty"`
	Config     *api.AdmissionSpec `yaml:"admission"`
}

func (c *validateCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a config file and print the topology it describes",
	}
	addConfigFlag(cmd.Flags(), &c.configPath)
	cmd.Flags().BoolVar(&c.showLinks, "links", false, "also print every link with its capacity")
	return cmd
}

func (c *validateCmd) run(cmd *cobra.Command, args []string) error {
	config, err := api.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	t, _ := algorithm.ParseConfig(config)
	d := topologyDescription{
		Nodes:      map[string]int{},
		VMSlots:    int32(len(t.GetServers())) * config.Topology.ServerVMSlots,
		Height:     t.GetHeight(),
		FaultLevel: algorithm.NodeLevel(*config.Admission.FailureDomainLevel).String(),
		Config:     config.Admission,
	}
	for l := algorithm.ServerLevel; l <= algorithm.CoreLevel; l++ {
		d.Nodes[l.String()] = len(t.GetLevelNodes(l))
	}
	if c.showLinks {
		d.Links = t.GetAPILinkStatuses()
	}
	fmt.Print(common.ToYaml(d))
	return nil
}
