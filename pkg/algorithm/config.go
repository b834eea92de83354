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

package algorithm

import (
	"fmt"

	"github.com/microsoft/hivedbackup/pkg/api"
	"k8s.io/klog"
)

// levelSpec describes how a node of a level is built: its fan-out, the capacity of
// the links to its children, and the prefix of its address.
type levelSpec struct {
	childNumber   int32
	childCapacity float64
	addressPrefix string
}

type topologyConstructor struct {
	// input
	levelSpecs    map[NodeLevel]levelSpec
	serverVMSlots int32
	// output
	t *Topology
	// internal status
	addressCounters map[NodeLevel]int32
}

func newTopologyConstructor(spec *api.TopologySpec) *topologyConstructor {
	return &topologyConstructor{
		levelSpecs: map[NodeLevel]levelSpec{
			CoreLevel:      {childNumber: spec.AggsPerCore, childCapacity: spec.AggLinkCapacity, addressPrefix: "core"},
			AggregateLevel: {childNumber: spec.TorsPerAgg, childCapacity: spec.TorLinkCapacity, addressPrefix: "agg"},
			TorLevel:       {childNumber: spec.ServersPerTor, childCapacity: spec.ServerLinkCapacity, addressPrefix: "tor"},
			ServerLevel:    {addressPrefix: "server"},
		},
		serverVMSlots: spec.ServerVMSlots,
		t: &Topology{
			spec:         spec,
			root:         NoNode,
			levelNodes:   map[NodeLevel][]NodeID{},
			serversUnder: map[NodeID]MachineList{},
		},
		addressCounters: map[NodeLevel]int32{},
	}
}

func (c *topologyConstructor) addNode(level NodeLevel, parent *Node) *Node {
	t := c.t
	n := &Node{
		id:      NodeID(len(t.nodes)),
		level:   level,
		address: api.NodeAddress(fmt.Sprintf("%v%v", c.levelSpecs[level].addressPrefix, c.addressCounters[level])),
		parent:  NoNode,
	}
	c.addressCounters[level]++
	t.nodes = append(t.nodes, n)
	t.machines = append(t.machines, nil)
	t.levelNodes[level] = append(t.levelNodes[level], n.id)
	if parent != nil {
		n.parent = parent.id
		parent.children = append(parent.children, n.id)
		l := newLink(LinkID(len(t.links)), n, parent, c.levelSpecs[parent.level].childCapacity)
		t.links = append(t.links, l)
		n.uplink = l
	}
	if level == ServerLevel {
		pm := NewPhysicalMachine(n, c.serverVMSlots)
		t.machines[n.id] = pm
		t.servers = append(t.servers, pm)
	}
	return n
}

// buildChildNodes builds the subtree below n depth first, so that the servers of a
// subtree get consecutive ids, and returns the servers under n.
func (c *topologyConstructor) buildChildNodes(n *Node) MachineList {
	servers := MachineList{}
	if n.level == ServerLevel {
		servers = append(servers, c.t.machines[n.id])
	} else {
		for i := int32(0); i < c.levelSpecs[n.level].childNumber; i++ {
			child := c.addNode(n.level-1, n)
			servers = append(servers, c.buildChildNodes(child)...)
		}
	}
	c.t.serversUnder[n.id] = servers
	return servers
}

func (c *topologyConstructor) build() *Topology {
	root := c.addNode(highestLevel, nil)
	c.t.root = root.id
	c.buildChildNodes(root)
	klog.Infof("Topology built: %v nodes, %v servers, %v links, %v VM slots",
		len(c.t.nodes), len(c.t.servers), len(c.t.links), c.t.servers.availableVMNum())
	return c.t
}

// ParseConfig builds the topology and the admission parameters from a defaulted and
// validated config.
func ParseConfig(config *api.Config) (t *Topology, policy FailureDomainPolicy) {
	t = NewTopology(config.Topology)
	policy = NewLevelFailureDomainPolicy(NodeLevel(*config.Admission.FailureDomainLevel))
	return t, policy
}
