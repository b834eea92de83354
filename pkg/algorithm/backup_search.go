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
	"math/rand"

	"github.com/microsoft/hivedbackup/pkg/api"
	"k8s.io/klog"
)

// backupPlacementSearch finds servers for the backups of a request, tentatively: it
// reserves VM slots but no bandwidth, which is left to the bandwidth mapping solver.
type backupPlacementSearch struct {
	t *Topology
	// random source for picking non-hosting servers, seeded for reproducible placements
	rand *rand.Rand
}

func newBackupPlacementSearch(t *Topology, seed int64) *backupPlacementSearch {
	return &backupPlacementSearch{
		t:    t,
		rand: rand.New(rand.NewSource(seed)),
	}
}

// maxSearchSteps bounds the search loop: one pass over the ancestor chain per
// collocation mode, each ending past the root.
func (s *backupPlacementSearch) maxSearchSteps() int {
	return 2 * (int(s.t.GetHeight()) + 2)
}

// Search walks up the ancestor chain from scope until a subtree can hold all the
// backups of the request. In collocation mode, walking past the root restarts the walk
// from the request's own subtree without collocation, once.
// It returns the subtree where the backups are placed (NoNode if none) and the
// collocation mode in effect when the search ended.
func (s *backupPlacementSearch) Search(r *Request, scope NodeID, collocate bool) (NodeID, bool) {
	for step := 0; step < s.maxSearchSteps(); step++ {
		if scope == NoNode {
			if collocate {
				klog.Infof("[%v]: No subtree found for %v backups with collocation, "+
					"searching again from %v without collocation",
					r.Key(), r.backupNeeded, s.t.GetNode(r.subtree).address)
				collocate = false
				scope = r.subtree
				continue
			}
			klog.Infof("[%v]: No subtree found for %v backups", r.Key(), r.backupNeeded)
			return NoNode, collocate
		}

		view := newSubtreeView(s.t, scope)
		parent := s.t.GetParent(scope)
		if view.GetAvailableVMNum() < r.backupNeeded || len(view.GetNonHostingServers(r.id)) == 0 {
			klog.V(4).Infof("[%v]: Subtree %v has %v available VMs and %v non-hosting servers, escalating",
				r.Key(), s.t.GetNode(scope).address, view.GetAvailableVMNum(),
				len(view.GetNonHostingServers(r.id)))
			scope = parent
			continue
		}
		if s.placeBackups(r, view, collocate) {
			klog.Infof("[%v]: Placed %v backups in subtree %v (collocation %v): %v",
				r.Key(), r.backupNeeded, s.t.GetNode(scope).address, collocate, r.backups)
			return scope, collocate
		}
		klog.Infof("[%v]: Failed to place %v backups in subtree %v, rolling back and escalating",
			r.Key(), r.backupNeeded, s.t.GetNode(scope).address)
		s.t.ReleaseRequest(r, api.BackupVM)
		scope = parent
	}
	panic(fmt.Sprintf("Assert Failure: [%v]: backup placement search did not terminate in %v steps",
		r.Key(), s.maxSearchSteps()))
}

// placeBackups tries to place all the backups of the request inside the view. The
// caller rolls back on failure.
func (s *backupPlacementSearch) placeBackups(r *Request, view *SubtreeView, collocate bool) bool {
	needed := r.backupNeeded
	placed := int32(0)
	if collocate && len(view.GetHostingServers(r.id)) > 1 {
		placed = s.placeCollocatedBackups(r, view)
	}
	if placed < needed && !s.placeNonHostingBackups(r, view, needed-placed) {
		return false
	}
	return true
}

// placeCollocatedBackups first puts minHosted backups on non-hosting servers, so that
// the failure of any collocation server leaves enough backups, then collocates up to
// (needed - minHosted) backups on hosting servers carrying exactly minHosted primaries.
// After any failure the subtrees of these servers then keep as many active VMs as
// before, which maximizes the bandwidth the primaries and backups can share.
// It returns the number of backups placed.
func (s *backupPlacementSearch) placeCollocatedBackups(r *Request, view *SubtreeView) int32 {
	needed := r.backupNeeded
	minHosted := view.GetMinNbOfHostedVMs(r.id)
	budget := needed - minHosted
	if minHosted <= 0 || budget <= 0 {
		return 0
	}
	if view.GetNonHostingAvailableVMNum(r.id) < minHosted {
		return 0
	}
	if !s.placeNonHostingBackups(r, view, minHosted) {
		panic(fmt.Sprintf("Assert Failure: [%v]: failed to place %v backups on %v free non-hosting slots",
			r.Key(), minHosted, view.GetNonHostingAvailableVMNum(r.id)))
	}
	placedOffHost := minHosted
	collocated := int32(0)
	for _, child := range view.GetOrderedChildren(r.id) {
		if collocated >= budget {
			break
		}
		if !view.CanCollocateBackups(child, r.id, placedOffHost, minHosted) {
			continue
		}
		for _, pm := range child.getCollocationCandidates(r.id, minHosted) {
			count := minInt32(budget-collocated, pm.GetAvailableVMNum())
			pm.ReserveVM(count, r, api.BackupVM)
			collocated += count
			klog.V(4).Infof("[%v]: Collocated %v backups on %v with %v primaries",
				r.Key(), count, pm.GetAddress(), minHosted)
			if collocated >= budget {
				break
			}
		}
	}
	return placedOffHost + collocated
}

// placeNonHostingBackups places count backups one at a time on the non-hosting servers
// of the view, picking each slot uniformly among all their free slots.
func (s *backupPlacementSearch) placeNonHostingBackups(r *Request, view *SubtreeView, count int32) bool {
	candidates := view.GetNonHostingServers(r.id)
	for i := int32(0); i < count; i++ {
		pm := s.pickRandomSlot(candidates)
		if pm == nil {
			return false
		}
		pm.ReserveVM(1, r, api.BackupVM)
	}
	return true
}

// pickRandomSlot returns a machine with probability proportional to its free slots,
// or nil if no slot is free.
func (s *backupPlacementSearch) pickRandomSlot(candidates MachineList) *PhysicalMachine {
	total := candidates.availableVMNum()
	if total <= 0 {
		return nil
	}
	k := s.rand.Int31n(total)
	for _, pm := range candidates {
		if k < pm.GetAvailableVMNum() {
			return pm
		}
		k -= pm.GetAvailableVMNum()
	}
	panic(fmt.Sprintf("Assert Failure: slot %v not found in %v free slots", k, total))
}
