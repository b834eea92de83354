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

type BandwidthReservation struct {
	Request   api.RequestID
	Bandwidth float64
	Kind      api.VMKind
}

// SharingSet groups requests whose backup bandwidth on a link is never needed at the
// same time (no single fault domain holds primaries of two members), so the link
// reserves only the largest member need for the whole group.
type SharingSet struct {
	members   []api.RequestID // sorted
	bandwidth float64
}

func newSharingSet(members []api.RequestID, bandwidth float64) *SharingSet {
	s := &SharingSet{members: append([]api.RequestID{}, members...), bandwidth: bandwidth}
	sort.Slice(s.members, func(i, j int) bool { return s.members[i] < s.members[j] })
	return s
}

func (s *SharingSet) GetMembers() []api.RequestID {
	return s.members
}

func (s *SharingSet) GetBandwidth() float64 {
	return s.bandwidth
}

func (s *SharingSet) contains(r api.RequestID) bool {
	for _, m := range s.members {
		if m == r {
			return true
		}
	}
	return false
}

func (s *SharingSet) String() string {
	return fmt.Sprintf("%v(%v)", s.members, s.bandwidth)
}

// Link connects a node to its parent. The hose model makes reservations symmetric,
// so one capacity covers both directions.
type Link struct {
	id           LinkID
	child        NodeID
	parent       NodeID
	address      string
	capacity     float64
	reservations []BandwidthReservation
	sharingSets  []*SharingSet
}

func newLink(id LinkID, child *Node, parent *Node, capacity float64) *Link {
	return &Link{
		id:       id,
		child:    child.id,
		parent:   parent.id,
		address:  fmt.Sprintf("%v-%v", child.address, parent.address),
		capacity: capacity,
	}
}

func (l *Link) GetID() LinkID {
	return l.id
}

func (l *Link) GetChild() NodeID {
	return l.child
}

func (l *Link) GetParent() NodeID {
	return l.parent
}

func (l *Link) GetAddress() string {
	return l.address
}

func (l *Link) GetCapacity() float64 {
	return l.capacity
}

func (l *Link) GetReservations() []BandwidthReservation {
	return l.reservations
}

func (l *Link) GetSharingSets() []*SharingSet {
	return l.sharingSets
}

// GetRequestBandwidth sums the reservations of a request. api.AnyVM sums both kinds.
func (l *Link) GetRequestBandwidth(r api.RequestID, kind api.VMKind) float64 {
	bw := 0.0
	for _, res := range l.reservations {
		if res.Request == r && (kind == api.AnyVM || res.Kind == kind) {
			bw += res.Bandwidth
		}
	}
	return bw
}

func (l *Link) HasRequest(r api.RequestID) bool {
	for _, res := range l.reservations {
		if res.Request == r {
			return true
		}
	}
	return false
}

func (l *Link) GetPrimaryBandwidth() float64 {
	bw := 0.0
	for _, res := range l.reservations {
		if res.Kind == api.PrimaryVM {
			bw += res.Bandwidth
		}
	}
	return bw
}

// getBackupNeeds returns the backup bandwidth reserved by each request on the link.
func (l *Link) getBackupNeeds() map[api.RequestID]float64 {
	needs := map[api.RequestID]float64{}
	for _, res := range l.reservations {
		if res.Kind == api.BackupVM {
			needs[res.Request] += res.Bandwidth
		}
	}
	return needs
}

// GetBackupBandwidth returns the backup bandwidth the link actually reserves: a sharing
// set counts once with its own amount, requests outside any set count in full.
func (l *Link) GetBackupBandwidth() float64 {
	return l.backupBandwidthWithout(nil)
}

// backupBandwidthWithout computes the backup bandwidth as if the given sharing set
// were dissolved.
func (l *Link) backupBandwidthWithout(dissolved *SharingSet) float64 {
	bw := 0.0
	shared := map[api.RequestID]bool{}
	for _, s := range l.sharingSets {
		if s == dissolved {
			continue
		}
		bw += s.bandwidth
		for _, m := range s.members {
			shared[m] = true
		}
	}
	for r, need := range l.getBackupNeeds() {
		if !shared[r] {
			bw += need
		}
	}
	return bw
}

// GetReservedBandwidth is the primary plus de-duplicated backup bandwidth.
func (l *Link) GetReservedBandwidth() float64 {
	return l.GetPrimaryBandwidth() + l.GetBackupBandwidth()
}

func (l *Link) GetResidualBandwidth() float64 {
	return l.capacity - l.GetReservedBandwidth()
}

func (l *Link) getSharingSetOf(r api.RequestID) *SharingSet {
	for _, s := range l.sharingSets {
		if s.contains(r) {
			return s
		}
	}
	return nil
}

// ReserveBandwidth appends a reservation record if it fits in the link capacity.
// Extra backup bandwidth of a shared request breaks the maximum its sharing set
// reserves, so that set is dissolved (and the check accounts for it).
func (l *Link) ReserveBandwidth(amount float64, r api.RequestID, kind api.VMKind) bool {
	if amount < 0 {
		panic(fmt.Sprintf("Assert Failure: reserving negative bandwidth %v on link %v", amount, l.address))
	}
	if amount == 0 {
		return true
	}
	var dissolved *SharingSet
	if kind == api.BackupVM {
		dissolved = l.getSharingSetOf(r)
	}
	reserved := l.GetPrimaryBandwidth() + l.backupBandwidthWithout(dissolved)
	if !common.FloatLE(reserved+amount, l.capacity) {
		klog.V(4).Infof("Link %v cannot reserve %v %v bandwidth for request %v: %v/%v reserved",
			l.address, amount, kind, r, reserved, l.capacity)
		return false
	}
	if dissolved != nil {
		klog.Infof("Sharing set %v on link %v is dissolved by new backup bandwidth of request %v",
			dissolved, l.address, r)
		l.removeSharingSet(dissolved)
	}
	l.reservations = append(l.reservations, BandwidthReservation{Request: r, Bandwidth: amount, Kind: kind})
	klog.V(4).Infof("Link %v reserved %v %v bandwidth for request %v (%v/%v)",
		l.address, amount, kind, r, l.GetReservedBandwidth(), l.capacity)
	return true
}

// ReleaseBandwidth drops the reservations of a request and returns the released amount.
// Backup releases also remove the request from its sharing set.
func (l *Link) ReleaseBandwidth(r api.RequestID, kind api.VMKind) float64 {
	released := 0.0
	kept := l.reservations[:0]
	for _, res := range l.reservations {
		if res.Request == r && (kind == api.AnyVM || res.Kind == kind) {
			released += res.Bandwidth
		} else {
			kept = append(kept, res)
		}
	}
	l.reservations = kept
	if kind != api.PrimaryVM {
		l.removeFromSharingSets(r)
	}
	return released
}

// removeFromSharingSets shrinks the sharing sets holding the request. A set that keeps
// fewer than two members no longer shares anything and is dropped.
func (l *Link) removeFromSharingSets(r api.RequestID) {
	kept := l.sharingSets[:0]
	for _, s := range l.sharingSets {
		if !s.contains(r) {
			kept = append(kept, s)
			continue
		}
		members := []api.RequestID{}
		for _, m := range s.members {
			if m != r {
				members = append(members, m)
			}
		}
		if len(members) < 2 {
			klog.Infof("Sharing set %v on link %v is invalidated by request %v", s, l.address, r)
			continue
		}
		needs := l.getBackupNeeds()
		bw := 0.0
		for _, m := range members {
			if needs[m] > bw {
				bw = needs[m]
			}
		}
		shrunk := newSharingSet(members, bw)
		klog.Infof("Sharing set %v on link %v shrinks to %v without request %v", s, l.address, shrunk, r)
		kept = append(kept, shrunk)
	}
	for i := len(kept); i < len(l.sharingSets); i++ {
		l.sharingSets[i] = nil
	}
	l.sharingSets = kept
}

func (l *Link) removeSharingSet(s *SharingSet) {
	for i, ss := range l.sharingSets {
		if ss == s {
			l.sharingSets = append(l.sharingSets[:i], l.sharingSets[i+1:]...)
			return
		}
	}
}

func (l *Link) setSharingSets(sets []*SharingSet) {
	l.sharingSets = sets
}

func (l *Link) GetAPIStatus(t *Topology) api.LinkStatus {
	s := api.LinkStatus{
		Child:            t.GetNode(l.child).address,
		Parent:           t.GetNode(l.parent).address,
		Capacity:         l.capacity,
		PrimaryBandwidth: l.GetPrimaryBandwidth(),
		BackupBandwidth:  l.GetBackupBandwidth(),
	}
	for _, ss := range l.sharingSets {
		s.SharingSets = append(s.SharingSets, append([]api.RequestID{}, ss.members...))
	}
	return s
}
