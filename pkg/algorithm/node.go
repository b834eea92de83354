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
	"k8s.io/klog"
)

// A Node is a vertex of the datacenter tree: a server or a switch.
// Nodes refer to each other by id; the topology owns them in an arena.
type Node struct {
	id       NodeID
	level    NodeLevel
	address  api.NodeAddress
	parent   NodeID   // NoNode for the root
	children []NodeID // empty for servers
	uplink   *Link    // link to the parent, nil for the root
}

func (n *Node) GetID() NodeID {
	return n.id
}

func (n *Node) GetLevel() NodeLevel {
	return n.level
}

// GetType returns the kind of hardware at the node, derived from its level.
func (n *Node) GetType() string {
	return n.level.String()
}

func (n *Node) GetAddress() api.NodeAddress {
	return n.address
}

func (n *Node) GetParent() NodeID {
	return n.parent
}

func (n *Node) GetChildren() []NodeID {
	return n.children
}

func (n *Node) GetUplink() *Link {
	return n.uplink
}

func (n *Node) IsServer() bool {
	return n.level == ServerLevel
}

// PhysicalMachine is a server, i.e., a leaf node holding VM slots.
type PhysicalMachine struct {
	node     *Node
	capacity int32
	// occupied VM slots in reservation order; len(slots) <= capacity at all times
	slots VMList
}

func NewPhysicalMachine(n *Node, capacity int32) *PhysicalMachine {
	return &PhysicalMachine{
		node:     n,
		capacity: capacity,
		slots:    VMList{},
	}
}

func (pm *PhysicalMachine) GetNode() *Node {
	return pm.node
}

func (pm *PhysicalMachine) GetID() NodeID {
	return pm.node.id
}

func (pm *PhysicalMachine) GetAddress() api.NodeAddress {
	return pm.node.address
}

func (pm *PhysicalMachine) GetCapacity() int32 {
	return pm.capacity
}

func (pm *PhysicalMachine) GetUsedVMNum() int32 {
	return int32(len(pm.slots))
}

func (pm *PhysicalMachine) GetAvailableVMNum() int32 {
	return pm.capacity - int32(len(pm.slots))
}

func (pm *PhysicalMachine) GetVMs() VMList {
	return pm.slots
}

// GetHostedVMNum counts the VMs of a request on this machine. api.AnyVM counts both kinds.
func (pm *PhysicalMachine) GetHostedVMNum(r api.RequestID, kind api.VMKind) int32 {
	n := int32(0)
	for _, vm := range pm.slots {
		if vm.id.Request == r && (kind == api.AnyVM || vm.kind == kind) {
			n++
		}
	}
	return n
}

// HostsPrimaryOf checks if the machine holds at least one primary VM of the request.
func (pm *PhysicalMachine) HostsPrimaryOf(r api.RequestID) bool {
	for _, vm := range pm.slots {
		if vm.id.Request == r && vm.kind == api.PrimaryVM {
			return true
		}
	}
	return false
}

// ReserveVM occupies count slots for the request. Callers must check the availability
// first: over-committing a machine is a bug, not an outcome.
func (pm *PhysicalMachine) ReserveVM(count int32, r *Request, kind api.VMKind) VMList {
	if count > pm.GetAvailableVMNum() {
		panic(fmt.Sprintf("Assert Failure: reserving %v %v VMs of request %v on %v exceeds "+
			"its available VM number %v", count, kind, r.id, pm.GetAddress(), pm.GetAvailableVMNum()))
	}
	if kind != api.PrimaryVM && kind != api.BackupVM {
		panic(fmt.Sprintf("Assert Failure: unknown VM kind %q", kind))
	}
	reserved := VMList{}
	for i := int32(0); i < count; i++ {
		vm := r.newVM(kind, pm)
		pm.slots = append(pm.slots, vm)
		reserved = append(reserved, vm)
	}
	if count > 0 {
		klog.V(4).Infof("[%v]: Reserved %v %v VMs on %v (%v/%v used)",
			r.Key(), count, kind, pm.GetAddress(), pm.GetUsedVMNum(), pm.capacity)
	}
	return reserved
}

// releaseRequest frees the slots of a request, keeping the order of the others.
// Releasing a request that holds nothing here is a no-op.
func (pm *PhysicalMachine) releaseRequest(r api.RequestID, kind api.VMKind) VMList {
	released := VMList{}
	kept := pm.slots[:0]
	for _, vm := range pm.slots {
		if vm.id.Request == r && (kind == api.AnyVM || vm.kind == kind) {
			vm.host = nil
			released = append(released, vm)
		} else {
			kept = append(kept, vm)
		}
	}
	for i := len(kept); i < len(pm.slots); i++ {
		pm.slots[i] = nil
	}
	pm.slots = kept
	return released
}

// VirtualMachine occupies one slot of a physical machine.
type VirtualMachine struct {
	id      VMID
	kind    api.VMKind
	request *Request
	host    *PhysicalMachine // nil once released
	// Backup currently protecting this primary VM, set after the bandwidth mapping
	// solver succeeds. Not owned: the backup belongs to the same request.
	protectedBy *VirtualMachine
}

func (vm *VirtualMachine) String() string {
	if vm.host == nil {
		return fmt.Sprintf("%v(%v)", vm.id, vm.kind)
	}
	return fmt.Sprintf("%v(%v)@%v", vm.id, vm.kind, vm.host.GetAddress())
}

func (vm *VirtualMachine) GetID() VMID {
	return vm.id
}

func (vm *VirtualMachine) GetKind() api.VMKind {
	return vm.kind
}

func (vm *VirtualMachine) GetRequest() *Request {
	return vm.request
}

func (vm *VirtualMachine) GetHost() *PhysicalMachine {
	return vm.host
}

func (vm *VirtualMachine) GetProtectedBy() *VirtualMachine {
	return vm.protectedBy
}
