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
	"k8s.io/apimachinery/pkg/util/sets"
)

// FailureDomainPolicy decides which nodes may fail (one at a time) and thus how many
// backups a request needs.
type FailureDomainPolicy interface {
	// GetFailureDomains returns, in id order, the domains holding primaries of the request.
	GetFailureDomains(t *Topology, r *Request) []NodeID
	// GetBackupNeeded returns the worst-case number of primaries lost by one failure.
	GetBackupNeeded(t *Topology, r *Request) int32
	// GetFootprint returns the failure domains whose failure activates the backups of
	// the request. Requests with disjoint footprints never need backup bandwidth at
	// the same time.
	GetFootprint(t *Topology, r *Request) sets.Int32
}

// levelFailureDomainPolicy makes every node up to maxLevel a fault domain: servers only
// for ServerLevel, servers and TORs for TorLevel, and so on. The core is never a fault
// domain since its failure disconnects every server.
type levelFailureDomainPolicy struct {
	maxLevel NodeLevel
}

func NewLevelFailureDomainPolicy(maxLevel NodeLevel) FailureDomainPolicy {
	if maxLevel < lowestLevel || maxLevel >= highestLevel {
		panic(fmt.Sprintf("Assert Failure: failure domain level %v out of range [%v, %v)",
			maxLevel, lowestLevel, highestLevel))
	}
	return &levelFailureDomainPolicy{maxLevel: maxLevel}
}

func (p *levelFailureDomainPolicy) GetFootprint(t *Topology, r *Request) sets.Int32 {
	footprint := sets.NewInt32()
	for _, vm := range r.primaries {
		if vm.host == nil {
			continue
		}
		for n := vm.host.GetID(); n != NoNode && t.GetNode(n).level <= p.maxLevel; n = t.GetParent(n) {
			footprint.Insert(int32(n))
		}
	}
	return footprint
}

func (p *levelFailureDomainPolicy) GetFailureDomains(t *Topology, r *Request) []NodeID {
	domains := []NodeID{}
	for _, n := range p.GetFootprint(t, r).List() {
		domains = append(domains, NodeID(n))
	}
	return domains
}

func (p *levelFailureDomainPolicy) GetBackupNeeded(t *Topology, r *Request) int32 {
	needed := int32(0)
	for _, d := range p.GetFailureDomains(t, r) {
		if n := t.GetHostedVMNumUnder(d, r.id, api.PrimaryVM); n > needed {
			needed = n
		}
	}
	return needed
}

// GetActiveVMsAfterFailure returns the VMs of the request serving after the failed
// node goes down: the surviving primaries, plus the surviving backups protecting lost
// primaries. It does not mutate anything.
func (t *Topology) GetActiveVMsAfterFailure(r *Request, failed NodeID) VMList {
	active := VMList{}
	takenOver := map[*VirtualMachine]bool{}
	for _, p := range r.primaries {
		if p.host == nil {
			continue
		}
		if !t.IsUnder(p.host.GetID(), failed) {
			active = append(active, p)
			continue
		}
		b := p.protectedBy
		if b != nil && b.host != nil && !t.IsUnder(b.host.GetID(), failed) && !takenOver[b] {
			takenOver[b] = true
			active = append(active, b)
		}
	}
	active.sortByID()
	return active
}
