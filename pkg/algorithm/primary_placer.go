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
	"sort"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"k8s.io/klog"
)

// PrimaryPlacement is where the primaries of a request go: the root of the smallest
// subtree holding them, and the number of primaries per server.
type PrimaryPlacement struct {
	Subtree NodeID
	VMNums  map[NodeID]int32
}

func (p *PrimaryPlacement) getServers() []NodeID {
	servers := make([]NodeID, 0, len(p.VMNums))
	for id, n := range p.VMNums {
		if n > 0 {
			servers = append(servers, id)
		}
	}
	sortNodeIDs(servers)
	return servers
}

// PrimaryPlacer finds servers for the primaries of a request. It must not mutate the
// topology: the admission controller commits the placement.
type PrimaryPlacer interface {
	Place(t *Topology, r *Request) (*PrimaryPlacement, bool)
}

// hosePrimaryPlacer allocates a virtual cluster the way Oktopus does: it computes,
// bottom up, the numbers of VMs each subtree can take without exceeding the residual
// bandwidth of any link below it under the hose model, and picks the lowest subtree
// able to take them all.
type hosePrimaryPlacer struct{}

func NewHosePrimaryPlacer() PrimaryPlacer {
	return &hosePrimaryPlacer{}
}

// placementView holds the feasible VM numbers of each visited subtree for one request.
type placementView struct {
	t        *Topology
	r        *Request
	feasible map[NodeID][]bool // feasible[n][k]: k VMs fit under n, links below n included
}

func (p *hosePrimaryPlacer) Place(t *Topology, r *Request) (*PrimaryPlacement, bool) {
	v := &placementView{t: t, r: r, feasible: map[NodeID][]bool{}}
	v.computeFeasible(t.root)
	for l := lowestLevel; l <= highestLevel; l++ {
		for _, n := range t.GetLevelNodes(l) {
			if v.feasible[n][r.vmNum] {
				placement := &PrimaryPlacement{Subtree: n, VMNums: map[NodeID]int32{}}
				v.allocate(n, r.vmNum, placement)
				klog.Infof("[%v]: Placed %v primaries in subtree %v", r.Key(), r.vmNum, t.GetNode(n).address)
				return placement, true
			}
		}
	}
	klog.Infof("[%v]: No subtree can host %v primaries with bandwidth %v", r.Key(), r.vmNum, r.bandwidth)
	return nil, false
}

// uplinkFits checks if k VMs under n leave enough bandwidth on the uplink of n.
func (v *placementView) uplinkFits(n NodeID, k int32) bool {
	l := v.t.GetNode(n).uplink
	return l == nil || common.FloatLE(v.r.hoseBandwidth(k, v.r.vmNum), l.GetResidualBandwidth())
}

func (v *placementView) computeFeasible(n NodeID) []bool {
	num := v.r.vmNum
	f := make([]bool, num+1)
	node := v.t.GetNode(n)
	if node.IsServer() {
		avail := v.t.GetMachine(n).GetAvailableVMNum()
		for k := int32(0); k <= num && k <= avail; k++ {
			f[k] = true
		}
	} else {
		f[0] = true
		for _, c := range node.children {
			cf := v.computeFeasible(c)
			next := make([]bool, num+1)
			for s := int32(0); s <= num; s++ {
				if !f[s] {
					continue
				}
				for k := int32(0); s+k <= num; k++ {
					if cf[k] && v.uplinkFits(c, k) {
						next[s+k] = true
					}
				}
			}
			f = next
		}
	}
	v.feasible[n] = f
	return f
}

// allocate distributes k VMs under n, packing them into the first children.
func (v *placementView) allocate(n NodeID, k int32, placement *PrimaryPlacement) {
	node := v.t.GetNode(n)
	if node.IsServer() {
		placement.VMNums[n] = k
		return
	}
	num := v.r.vmNum
	children := node.children
	// reach[i][s]: s VMs fit under children[i:]
	reach := make([][]bool, len(children)+1)
	reach[len(children)] = make([]bool, num+1)
	reach[len(children)][0] = true
	for i := len(children) - 1; i >= 0; i-- {
		reach[i] = make([]bool, num+1)
		cf := v.feasible[children[i]]
		for s := int32(0); s <= num; s++ {
			for c := int32(0); c <= s; c++ {
				if cf[c] && v.uplinkFits(children[i], c) && reach[i+1][s-c] {
					reach[i][s] = true
					break
				}
			}
		}
	}
	if !reach[0][k] {
		panic(fmt.Sprintf("Assert Failure: [%v]: %v VMs do not fit under %v", v.r.Key(), k, node.address))
	}
	for i, c := range children {
		cf := v.feasible[c]
		for ck := k; ck >= 0; ck-- {
			if cf[ck] && v.uplinkFits(c, ck) && reach[i+1][k-ck] {
				if ck > 0 {
					v.allocate(c, ck, placement)
				}
				k -= ck
				break
			}
		}
	}
}

// commitPrimaryPlacement reserves the VM slots and the hose bandwidth of a placement.
// The placement must fit: the placer computed it on the current ledger.
func commitPrimaryPlacement(t *Topology, r *Request, placement *PrimaryPlacement) {
	total := int32(0)
	for _, id := range placement.getServers() {
		pm := t.GetMachine(id)
		if pm == nil {
			panic(fmt.Sprintf("Assert Failure: [%v]: primary placement on switch %v", r.Key(), t.GetNode(id).address))
		}
		pm.ReserveVM(placement.VMNums[id], r, api.PrimaryVM)
		total += placement.VMNums[id]
	}
	if total != r.vmNum {
		panic(fmt.Sprintf("Assert Failure: [%v]: primary placement holds %v VMs instead of %v",
			r.Key(), total, r.vmNum))
	}
	counts := countVMsUnder(t, r.primaries)
	ids := make([]NodeID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		l := t.GetNode(id).uplink
		if !l.ReserveBandwidth(r.hoseBandwidth(counts[id], r.vmNum), r.id, api.PrimaryVM) {
			panic(fmt.Sprintf("Assert Failure: [%v]: primary placement exceeds the capacity of link %v",
				r.Key(), l.address))
		}
	}
	r.subtree = placement.Subtree
	klog.Infof("[%v]: Committed primaries in subtree %v: %v", r.Key(), t.GetNode(r.subtree).address, r.primaries)
}
