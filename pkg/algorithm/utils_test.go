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
	"testing"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/stretchr/testify/assert"
)

// core0 -> agg0..1 -> tor0..3 -> server0..11: tor0 holds server0..2, tor1 server3..5,
// tor2 server6..8 and tor3 server9..11.
const testTopologyYaml = `
topology:
  aggsPerCore: 2
  torsPerAgg: 2
  serversPerTor: 3
  serverVMSlots: 4
  serverLinkCapacity: 1000
  torLinkCapacity: 1000
  aggLinkCapacity: 1000
`

func newTestConfig(admissionYaml string) *api.Config {
	return api.NewConfigFromYaml(testTopologyYaml + admissionYaml)
}

func newTestTopology() *Topology {
	return NewTopology(newTestConfig("").Topology)
}

func nodeOf(t *Topology, address string) NodeID {
	n := t.GetNodeByAddress(api.NodeAddress(address))
	if n == nil {
		panic("Cannot find node " + address)
	}
	return n.GetID()
}

func machineOf(t *Topology, address string) *PhysicalMachine {
	return t.GetMachine(nodeOf(t, address))
}

func linkOf(t *Topology, address string) *Link {
	for _, l := range t.GetLinks() {
		if l.GetAddress() == address {
			return l
		}
	}
	panic("Cannot find link " + address)
}

// placeTestPrimaries commits primaries on the given servers, bypassing the placer.
func placeTestPrimaries(t *Topology, r *Request, vmNums map[string]int32) {
	placement := &PrimaryPlacement{Subtree: NoNode, VMNums: map[NodeID]int32{}}
	for address, n := range vmNums {
		id := nodeOf(t, address)
		placement.VMNums[id] = n
		if placement.Subtree == NoNode {
			placement.Subtree = id
		} else {
			placement.Subtree = t.LCA(placement.Subtree, id)
		}
	}
	commitPrimaryPlacement(t, r, placement)
}

func TestSortedLinkIDs(t *testing.T) {
	ids := sortedLinkIDs(map[LinkID]float64{7: 1, 2: 0, 5: 3})
	assert.Equal(t, []LinkID{2, 5, 7}, ids)
	assert.Empty(t, sortedLinkIDs(map[LinkID]float64{}))
}

func TestCountVMsUnder(t *testing.T) {
	topo := newTestTopology()
	r := NewRequest(0, 5, 10, 0, 1)
	placeTestPrimaries(topo, r, map[string]int32{"server0": 3, "server4": 2})

	counts := countVMsUnder(topo, r.GetPrimaries())
	assert.Equal(t, int32(3), counts[nodeOf(topo, "server0")])
	assert.Equal(t, int32(2), counts[nodeOf(topo, "server4")])
	assert.Equal(t, int32(3), counts[nodeOf(topo, "tor0")])
	assert.Equal(t, int32(2), counts[nodeOf(topo, "tor1")])
	assert.Equal(t, int32(5), counts[nodeOf(topo, "agg0")])
	_, ok := counts[topo.GetRoot()]
	assert.False(t, ok, "the root has no uplink and is not counted")
}
