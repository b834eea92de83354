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
	"strings"

	"github.com/microsoft/hivedbackup/pkg/api"
)

type (
	NodeID        int32 // index of a node in the topology arena
	LinkID        int32 // index of a link in the topology arena
	NodeLevel     int32
	RetryState    string
	MappingStatus string
)

func (l NodeLevel) String() string {
	switch l {
	case ServerLevel:
		return "Server"
	case TorLevel:
		return "TOR"
	case AggregateLevel:
		return "Aggregate"
	case CoreLevel:
		return "Core"
	default:
		return fmt.Sprintf("Level%d", int32(l))
	}
}

// VMID identifies a VM by its request and its index inside the request.
type VMID struct {
	Request api.RequestID
	Index   int32
}

func (id VMID) String() string {
	return fmt.Sprintf("request-%v/vm-%v", id.Request, id.Index)
}

// MachineList is a list of physical machines, usually servers under a subtree.
type MachineList []*PhysicalMachine

func (ml MachineList) String() string {
	names := make([]string, len(ml))
	for i, pm := range ml {
		names[i] = fmt.Sprintf("%v(%v/%v)", pm.GetAddress(), pm.GetUsedVMNum(), pm.GetCapacity())
	}
	return strings.Join(names, ", ")
}

func (ml MachineList) contains(pm *PhysicalMachine) bool {
	for _, m := range ml {
		if m == pm {
			return true
		}
	}
	return false
}

// availableVMNum sums the free VM slots of the machines.
func (ml MachineList) availableVMNum() int32 {
	n := int32(0)
	for _, pm := range ml {
		n += pm.GetAvailableVMNum()
	}
	return n
}

// VMList is a list of VMs, sorted by id for stable iteration.
type VMList []*VirtualMachine

func (vl VMList) String() string {
	names := make([]string, len(vl))
	for i, vm := range vl {
		names[i] = vm.String()
	}
	return strings.Join(names, ", ")
}

func (vl VMList) sortByID() {
	sort.SliceStable(vl, func(i, j int) bool {
		if vl[i].id.Request != vl[j].id.Request {
			return vl[i].id.Request < vl[j].id.Request
		}
		return vl[i].id.Index < vl[j].id.Index
	})
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
