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
)

// SubtreeView is a rooted cut of the topology. It holds no state of its own: every
// query reads the ledger, so a view stays valid across reservations.
type SubtreeView struct {
	t       *Topology
	root    NodeID
	servers MachineList
}

func newSubtreeView(t *Topology, root NodeID) *SubtreeView {
	return &SubtreeView{
		t:       t,
		root:    root,
		servers: t.GetServersUnder(root),
	}
}

func (s *SubtreeView) GetRoot() NodeID {
	return s.root
}

func (s *SubtreeView) GetServers() MachineList {
	return s.servers
}

// Parent returns the view rooted at the parent, or nil at the top of the tree.
func (s *SubtreeView) Parent() *SubtreeView {
	p := s.t.GetParent(s.root)
	if p == NoNode {
		return nil
	}
	return newSubtreeView(s.t, p)
}

func (s *SubtreeView) GetAvailableVMNum() int32 {
	return s.servers.availableVMNum()
}

// GetHostingServers returns the servers holding at least one primary of the request.
func (s *SubtreeView) GetHostingServers(r api.RequestID) MachineList {
	hosting := MachineList{}
	for _, pm := range s.servers {
		if pm.HostsPrimaryOf(r) {
			hosting = append(hosting, pm)
		}
	}
	return hosting
}

func (s *SubtreeView) GetNonHostingServers(r api.RequestID) MachineList {
	nonHosting := MachineList{}
	for _, pm := range s.servers {
		if !pm.HostsPrimaryOf(r) {
			nonHosting = append(nonHosting, pm)
		}
	}
	return nonHosting
}

func (s *SubtreeView) GetNonHostingAvailableVMNum(r api.RequestID) int32 {
	return s.GetNonHostingServers(r).availableVMNum()
}

// GetMinNbOfHostedVMs returns the smallest primary count on a hosting server, or 0 if
// no server of the subtree hosts the request.
func (s *SubtreeView) GetMinNbOfHostedVMs(r api.RequestID) int32 {
	min := int32(0)
	for _, pm := range s.servers {
		if n := pm.GetHostedVMNum(r, api.PrimaryVM); n > 0 && (min == 0 || n < min) {
			min = n
		}
	}
	return min
}

// GetOrderedChildren returns the child views, the ones hosting more primaries of the
// request first, to keep collocated backups compact.
func (s *SubtreeView) GetOrderedChildren(r api.RequestID) []*SubtreeView {
	cv := newSubtreeClusterView(s.t, s.root, r)
	sort.Stable(cv)
	return cv.views
}

// getCollocationCandidates returns the hosting servers carrying exactly minHosted
// primaries of the request and at least one free slot.
func (s *SubtreeView) getCollocationCandidates(r api.RequestID, minHosted int32) MachineList {
	candidates := MachineList{}
	for _, pm := range s.GetHostingServers(r) {
		if pm.GetHostedVMNum(r, api.PrimaryVM) == minHosted && pm.GetAvailableVMNum() > 0 {
			candidates = append(candidates, pm)
		}
	}
	return candidates
}

// CanCollocateBackups checks if backups may be collocated on hosting servers of the
// child: the child has a hosting server with exactly minHosted primaries and a free
// slot, this subtree keeps (or can still keep) minHosted backups on non-hosting
// servers, and the request spans more than one server.
func (s *SubtreeView) CanCollocateBackups(
	child *SubtreeView, r api.RequestID, alreadyPlacedOffHost int32, minHosted int32) bool {

	if minHosted <= 0 || len(child.getCollocationCandidates(r, minHosted)) == 0 {
		return false
	}
	if alreadyPlacedOffHost < minHosted &&
		s.GetNonHostingAvailableVMNum(r) < minHosted-alreadyPlacedOffHost {
		return false
	}
	return len(s.GetHostingServers(r)) > 1
}
