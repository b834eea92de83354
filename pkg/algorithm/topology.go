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

	"github.com/hashicorp/go-multierror"
	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"k8s.io/klog"
)

// Topology is the fat-tree and the resource ledger living on it. Nodes, machines and
// links are kept in arenas indexed by their ids; nothing is added or removed after
// construction, only reservations change.
type Topology struct {
	spec         *api.TopologySpec
	nodes        []*Node
	machines     []*PhysicalMachine // indexed by NodeID, nil for switches
	servers      MachineList        // all machines in id order
	links        []*Link
	root         NodeID
	levelNodes   map[NodeLevel][]NodeID
	serversUnder map[NodeID]MachineList
}

func NewTopology(spec *api.TopologySpec) *Topology {
	return newTopologyConstructor(spec).build()
}

func (t *Topology) GetSpec() *api.TopologySpec {
	return t.spec
}

func (t *Topology) GetRoot() NodeID {
	return t.root
}

func (t *Topology) GetNode(id NodeID) *Node {
	return t.nodes[id]
}

func (t *Topology) GetNodes() []*Node {
	return t.nodes
}

// GetMachine returns nil if the node is a switch.
func (t *Topology) GetMachine(id NodeID) *PhysicalMachine {
	return t.machines[id]
}

func (t *Topology) GetServers() MachineList {
	return t.servers
}

func (t *Topology) GetServersUnder(id NodeID) MachineList {
	return t.serversUnder[id]
}

func (t *Topology) GetLinks() []*Link {
	return t.links
}

func (t *Topology) GetLink(id LinkID) *Link {
	return t.links[id]
}

func (t *Topology) GetLevelNodes(l NodeLevel) []NodeID {
	return t.levelNodes[l]
}

func (t *Topology) GetParent(id NodeID) NodeID {
	return t.nodes[id].parent
}

// GetHeight returns the number of levels above the servers.
func (t *Topology) GetHeight() int32 {
	return int32(t.nodes[t.root].level)
}

func (t *Topology) GetNodeByAddress(address api.NodeAddress) *Node {
	for _, n := range t.nodes {
		if n.address == address {
			return n
		}
	}
	return nil
}

// IsUnder checks if n is ancestor itself or one of its descendants.
func (t *Topology) IsUnder(n NodeID, ancestor NodeID) bool {
	for ; n != NoNode; n = t.nodes[n].parent {
		if n == ancestor {
			return true
		}
		if t.nodes[n].level >= t.nodes[ancestor].level {
			return false
		}
	}
	return false
}

// GetAncestor returns the ancestor of n at the given level, or NoNode if the level is
// lower than n's or above the root.
func (t *Topology) GetAncestor(n NodeID, level NodeLevel) NodeID {
	for ; n != NoNode; n = t.nodes[n].parent {
		if t.nodes[n].level == level {
			return n
		}
	}
	return NoNode
}

// LCA returns the lowest common ancestor of two nodes.
func (t *Topology) LCA(a NodeID, b NodeID) NodeID {
	for t.nodes[a].level < t.nodes[b].level {
		a = t.nodes[a].parent
	}
	for t.nodes[b].level < t.nodes[a].level {
		b = t.nodes[b].parent
	}
	for a != b {
		a = t.nodes[a].parent
		b = t.nodes[b].parent
	}
	return a
}

// GetPathLinks returns the links on the path between two nodes.
func (t *Topology) GetPathLinks(a NodeID, b NodeID) []*Link {
	lca := t.LCA(a, b)
	links := []*Link{}
	for _, n := range []NodeID{a, b} {
		for ; n != lca; n = t.nodes[n].parent {
			links = append(links, t.nodes[n].uplink)
		}
	}
	return links
}

// GetHostedVMNumUnder counts the VMs of a request in the subtree of a node.
func (t *Topology) GetHostedVMNumUnder(id NodeID, r api.RequestID, kind api.VMKind) int32 {
	n := int32(0)
	for _, pm := range t.serversUnder[id] {
		n += pm.GetHostedVMNum(r, kind)
	}
	return n
}

// ReleaseRequest frees every VM slot and bandwidth reservation the request holds,
// restricted to one kind unless kind is api.AnyVM, and returns the links it touched.
// Releasing a request holding nothing is a no-op.
func (t *Topology) ReleaseRequest(r *Request, kind api.VMKind) []*Link {
	releasedVMs := 0
	for _, pm := range t.servers {
		releasedVMs += len(pm.releaseRequest(r.id, kind))
	}
	touched := []*Link{}
	releasedBandwidth := 0.0
	for _, l := range t.links {
		if l.HasRequest(r.id) || l.getSharingSetOf(r.id) != nil {
			bw := l.ReleaseBandwidth(r.id, kind)
			releasedBandwidth += bw
			touched = append(touched, l)
		}
	}
	r.forgetVMs(kind)
	if releasedVMs > 0 || releasedBandwidth > 0 {
		klog.Infof("[%v]: Released %v VMs and %v bandwidth of kind %q",
			r.Key(), releasedVMs, releasedBandwidth, kind)
	}
	return touched
}

// GetTouchedLinks returns the links carrying any reservation of the request.
func (t *Topology) GetTouchedLinks(r api.RequestID) []*Link {
	touched := []*Link{}
	for _, l := range t.links {
		if l.HasRequest(r) {
			touched = append(touched, l)
		}
	}
	return touched
}

// GetResidualBandwidthSnapshot copies the residual bandwidth of every link.
func (t *Topology) GetResidualBandwidthSnapshot() map[LinkID]float64 {
	snapshot := make(map[LinkID]float64, len(t.links))
	for _, l := range t.links {
		snapshot[l.id] = l.GetResidualBandwidth()
	}
	return snapshot
}

// CheckInvariants verifies the ledger: machine capacities, link capacities, and that
// no primary is protected by a backup on its own machine.
func (t *Topology) CheckInvariants() error {
	var result *multierror.Error
	for _, pm := range t.servers {
		if pm.GetUsedVMNum() > pm.GetCapacity() {
			result = multierror.Append(result, fmt.Errorf(
				"server %v uses %v VM slots over its capacity %v",
				pm.GetAddress(), pm.GetUsedVMNum(), pm.GetCapacity()))
		}
		for _, vm := range pm.slots {
			if vm.host != pm {
				result = multierror.Append(result, fmt.Errorf(
					"%v is in a slot of server %v but not hosted by it", vm, pm.GetAddress()))
			}
			b := vm.protectedBy
			if b == nil {
				continue
			}
			if b.host == nil || b.host == pm {
				result = multierror.Append(result, fmt.Errorf(
					"%v is protected by %v on the same or no server", vm, b))
			}
			if b.id.Request != vm.id.Request || b.kind != api.BackupVM {
				result = multierror.Append(result, fmt.Errorf(
					"%v is protected by %v which is not a backup of the same request", vm, b))
			}
		}
	}
	for _, l := range t.links {
		if !common.FloatLE(l.GetReservedBandwidth(), l.capacity) {
			result = multierror.Append(result, fmt.Errorf(
				"link %v reserves %v bandwidth over its capacity %v",
				l.address, l.GetReservedBandwidth(), l.capacity))
		}
	}
	return result.ErrorOrNil()
}

func (t *Topology) GetAPILinkStatuses() []api.LinkStatus {
	s := make([]api.LinkStatus, 0, len(t.links))
	for _, l := range t.links {
		s = append(s, l.GetAPIStatus(t))
	}
	return s
}
