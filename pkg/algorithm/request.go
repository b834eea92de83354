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
	"github.com/microsoft/hivedbackup/pkg/internal"
)

// Request is a tenant asking for vmNum primary VMs, each with a hose bandwidth
// guarantee, plus the backups protecting them against a single fault domain failure.
type Request struct {
	id            api.RequestID
	vmNum         int32
	bandwidth     float64
	arrivalTime   float64
	departureTime float64

	admitted        bool
	departed        bool
	rejectionReason api.RejectionReason
	subtree         NodeID // root of the subtree embedding the primaries
	backupNeeded    int32

	primaries   VMList
	backups     VMList
	nextVMIndex int32

	// summaries taken at admission, kept after departure for reporting
	reservedBackupBandwidth float64
	reservedBackupVMNum     int32
	primaryPlacement        map[api.NodeAddress]int32
	backupPlacement         map[api.NodeAddress]int32
}

func NewRequest(
	id api.RequestID, vmNum int32, bandwidth float64, arrivalTime float64, departureTime float64) *Request {

	if vmNum <= 0 {
		panic(fmt.Sprintf("Assert Failure: request %v has non-positive VM number %v", id, vmNum))
	}
	return &Request{
		id:              id,
		vmNum:           vmNum,
		bandwidth:       bandwidth,
		arrivalTime:     arrivalTime,
		departureTime:   departureTime,
		rejectionReason: api.RejectionNone,
		subtree:         NoNode,
	}
}

func NewRequestFromSpec(s *api.RequestSpec) *Request {
	return NewRequest(s.ID, s.VMNumber, s.Bandwidth, s.ArrivalTime, s.DepartureTime)
}

func (r *Request) Key() string {
	return internal.Key(r.id)
}

func (r *Request) GetID() api.RequestID {
	return r.id
}

func (r *Request) GetVMNum() int32 {
	return r.vmNum
}

func (r *Request) GetBandwidth() float64 {
	return r.bandwidth
}

func (r *Request) GetArrivalTime() float64 {
	return r.arrivalTime
}

func (r *Request) GetDepartureTime() float64 {
	return r.departureTime
}

func (r *Request) IsAdmitted() bool {
	return r.admitted
}

func (r *Request) IsDeparted() bool {
	return r.departed
}

func (r *Request) GetRejectionReason() api.RejectionReason {
	return r.rejectionReason
}

func (r *Request) GetSubtree() NodeID {
	return r.subtree
}

func (r *Request) GetBackupNeeded() int32 {
	return r.backupNeeded
}

func (r *Request) GetPrimaries() VMList {
	return r.primaries
}

func (r *Request) GetBackups() VMList {
	return r.backups
}

func (r *Request) GetReservedBackupBandwidth() float64 {
	return r.reservedBackupBandwidth
}

func (r *Request) GetReservedBackupVMNum() int32 {
	return r.reservedBackupVMNum
}

// hoseBandwidth is the bandwidth the request needs on a link that separates m of its
// n VMs from the others.
func (r *Request) hoseBandwidth(m int32, n int32) float64 {
	if m > n-m {
		m = n - m
	}
	if m < 0 {
		m = 0
	}
	return float64(m) * r.bandwidth
}

func (r *Request) newVM(kind api.VMKind, host *PhysicalMachine) *VirtualMachine {
	vm := &VirtualMachine{
		id:      VMID{Request: r.id, Index: r.nextVMIndex},
		kind:    kind,
		request: r,
		host:    host,
	}
	r.nextVMIndex++
	if kind == api.PrimaryVM {
		r.primaries = append(r.primaries, vm)
	} else {
		r.backups = append(r.backups, vm)
	}
	return vm
}

// forgetVMs drops the released VMs of a kind from the request's own lists.
func (r *Request) forgetVMs(kind api.VMKind) {
	if kind == api.AnyVM || kind == api.BackupVM {
		r.backups = nil
		for _, p := range r.primaries {
			p.protectedBy = nil
		}
	}
	if kind == api.AnyVM || kind == api.PrimaryVM {
		r.primaries = nil
	}
}

// recordAdmission snapshots where the VMs of the request are.
func (r *Request) recordAdmission() {
	r.primaryPlacement = placementOf(r.primaries)
	r.backupPlacement = placementOf(r.backups)
}

// clearAdmission drops the summaries of a request that no longer counts as admitted.
func (r *Request) clearAdmission() {
	r.reservedBackupBandwidth = 0
	r.reservedBackupVMNum = 0
	r.primaryPlacement = nil
	r.backupPlacement = nil
}

func placementOf(vms VMList) map[api.NodeAddress]int32 {
	if len(vms) == 0 {
		return nil
	}
	p := map[api.NodeAddress]int32{}
	for _, vm := range vms {
		if vm.host != nil {
			p[vm.host.GetAddress()]++
		}
	}
	return p
}

// GetAPIStatus snapshots the request for reporting code. A departed request keeps
// reporting what it held while admitted.
func (r *Request) GetAPIStatus(t *Topology) api.RequestStatus {
	s := api.RequestStatus{
		ID:                      r.id,
		VMNumber:                r.vmNum,
		Bandwidth:               r.bandwidth,
		Admitted:                r.admitted,
		RejectionReason:         r.rejectionReason,
		BackupNeeded:            r.backupNeeded,
		PrimaryPlacement:        r.primaryPlacement,
		BackupPlacement:         r.backupPlacement,
		ReservedBackupBandwidth: r.reservedBackupBandwidth,
		ReservedBackupVMNumber:  r.reservedBackupVMNum,
		ArrivalTime:             r.arrivalTime,
		DepartureTime:           r.departureTime,
	}
	if r.subtree != NoNode {
		s.Subtree = t.GetNode(r.subtree).GetAddress()
	}
	return s
}
