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
	"sort"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog"
)

// BandwidthSharingEngine groups the backup reservations of a link into sharing sets.
// Under the single failure assumption, requests whose fault domain footprints are
// disjoint never activate their backups together, so a set only needs the largest
// need of its members.
type BandwidthSharingEngine struct {
	t        *Topology
	policy   FailureDomainPolicy
	requests map[api.RequestID]*Request // owned by the admission controller
}

func NewBandwidthSharingEngine(
	t *Topology, policy FailureDomainPolicy, requests map[api.RequestID]*Request) *BandwidthSharingEngine {

	return &BandwidthSharingEngine{
		t:        t,
		policy:   policy,
		requests: requests,
	}
}

// sharingGroup is a sharing set being built, with the union of its members' footprints.
type sharingGroup struct {
	members   []api.RequestID
	footprint sets.Int32
	bandwidth float64
}

// groupTenants greedily puts each request holding backup bandwidth on the link, by
// descending need, into the first group it is exclusive with.
func (e *BandwidthSharingEngine) groupTenants(l *Link) []*SharingSet {
	needs := l.getBackupNeeds()
	ids := make([]api.RequestID, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if needs[ids[i]] != needs[ids[j]] {
			return needs[ids[i]] > needs[ids[j]]
		}
		return ids[i] < ids[j]
	})

	groups := []*sharingGroup{}
	for _, id := range ids {
		r, ok := e.requests[id]
		if !ok {
			klog.Errorf("Link %v holds backup bandwidth of unknown request %v", l.address, id)
			continue
		}
		footprint := e.policy.GetFootprint(e.t, r)
		var group *sharingGroup
		for _, g := range groups {
			if !g.footprint.HasAny(footprint.UnsortedList()...) {
				group = g
				break
			}
		}
		if group == nil {
			group = &sharingGroup{footprint: sets.NewInt32()}
			groups = append(groups, group)
		}
		group.members = append(group.members, id)
		group.footprint.Insert(footprint.UnsortedList()...)
		if needs[id] > group.bandwidth {
			group.bandwidth = needs[id]
		}
	}

	sharingSets := []*SharingSet{}
	for _, g := range groups {
		if len(g.members) > 1 {
			sharingSets = append(sharingSets, newSharingSet(g.members, g.bandwidth))
		}
	}
	return sharingSets
}

// ReserveTenantsSharedBandwidth regroups the backup reservations of the link and
// commits the grouping if the link can hold it after its primary reservations.
// On failure the link is left without sharing sets.
func (e *BandwidthSharingEngine) ReserveTenantsSharedBandwidth(l *Link) bool {
	l.setSharingSets(e.groupTenants(l))
	if !common.FloatLE(l.GetReservedBandwidth(), l.capacity) {
		klog.Warningf("Link %v cannot hold its shared backup bandwidth %v with primary bandwidth %v "+
			"and capacity %v", l.address, l.GetBackupBandwidth(), l.GetPrimaryBandwidth(), l.capacity)
		l.setSharingSets(nil)
		return false
	}
	return true
}

// ReleaseTenantsSharedBandwidth drops the sharing sets of the link and returns them.
// Every member then counts its full backup need again until the link is regrouped.
func (e *BandwidthSharingEngine) ReleaseTenantsSharedBandwidth(l *Link) []*SharingSet {
	old := l.sharingSets
	l.setSharingSets(nil)
	return old
}

// Recompute regroups the links touched by an arrival or a departure. A new grouping
// reserving more than the previous one is discarded, so regrouping never increases
// the reserved bandwidth of a link. It returns false if a link cannot hold its
// reservations under any of the two groupings.
func (e *BandwidthSharingEngine) Recompute(links []*Link) bool {
	ok := true
	for _, l := range links {
		before := l.GetBackupBandwidth()
		old := e.ReleaseTenantsSharedBandwidth(l)
		if !e.ReserveTenantsSharedBandwidth(l) || l.GetBackupBandwidth() > before+common.Epsilon {
			l.setSharingSets(old)
		}
		if !common.FloatLE(l.GetReservedBandwidth(), l.capacity) {
			ok = false
			continue
		}
		if after := l.GetBackupBandwidth(); !common.FloatEqual(before, after) {
			klog.Infof("Link %v backup bandwidth regrouped from %v to %v: %v",
				l.address, before, after, l.sharingSets)
		}
	}
	return ok
}
