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

// sortedLinkIDs returns the keys of a per-link map in id order, so that reservations
// happen in a reproducible order.
func sortedLinkIDs(m map[LinkID]float64) []LinkID {
	ids := make([]LinkID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// countVMsUnder counts, for every node other than the root, the VMs in its subtree.
func countVMsUnder(t *Topology, vms VMList) map[NodeID]int32 {
	counts := map[NodeID]int32{}
	for _, vm := range vms {
		for n := vm.host.GetID(); n != t.root; n = t.GetParent(n) {
			counts[n]++
		}
	}
	return counts
}

// subtreeClusterView ranks the child subtrees of a scope for collocation: the ones
// hosting more primaries of the request first, then by id.
type subtreeClusterView struct {
	views  []*SubtreeView
	hosted map[NodeID]int32
}

func newSubtreeClusterView(t *Topology, parent NodeID, r api.RequestID) *subtreeClusterView {
	cv := &subtreeClusterView{hosted: map[NodeID]int32{}}
	for _, c := range t.GetNode(parent).children {
		cv.views = append(cv.views, newSubtreeView(t, c))
		cv.hosted[c] = t.GetHostedVMNumUnder(c, r, api.PrimaryVM)
	}
	return cv
}

func (cv *subtreeClusterView) Len() int {
	return len(cv.views)
}

func (cv *subtreeClusterView) Less(i, j int) bool {
	ri, rj := cv.views[i].root, cv.views[j].root
	if cv.hosted[ri] != cv.hosted[rj] {
		return cv.hosted[ri] > cv.hosted[rj]
	}
	return ri < rj
}

func (cv *subtreeClusterView) Swap(i int, j int) {
	cv.views[i], cv.views[j] = cv.views[j], cv.views[i]
}

func minInt32(a int32, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
