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
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-multierror"
	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/internal"
	"github.com/microsoft/hivedbackup/pkg/metrics"
	"k8s.io/klog"
)

// AdmissionController admits requests onto the topology: it places their primaries,
// protects them with backups, and regroups the shared backup bandwidth after each
// arrival and departure. It exclusively owns the topology and its ledger.
type AdmissionController struct {
	topology *Topology
	placer   PrimaryPlacer
	solver   BandwidthMappingSolver
	policy   FailureDomainPolicy
	search   *backupPlacementSearch
	sharing  *BandwidthSharingEngine
	// all requests that ever arrived, including rejected and departed ones
	requests map[api.RequestID]*Request

	collocation      bool
	bandwidthSharing bool
	solverRetries    int32

	metrics *metrics.Recorder
	// Events are processed run-to-completion; the lock keeps readers such as the
	// metrics handler from seeing a half-done admission.
	lock sync.Mutex
}

// ProtectionResult is the outcome of one admission attempt.
type ProtectionResult struct {
	Admitted        bool
	RejectionReason api.RejectionReason
	// Subtree where the backups were finally placed, NoNode if rejected
	Scope NodeID
	// Collocation mode in effect when the attempt ended
	Collocated bool
	// States visited, in order
	Trace []RetryState
}

// NewAdmissionController creates a controller on a new topology built from the config.
// A nil placer or solver selects the reference one, a nil recorder disables metrics.
func NewAdmissionController(
	config *api.Config,
	placer PrimaryPlacer,
	solver BandwidthMappingSolver,
	recorder *metrics.Recorder) *AdmissionController {

	t, policy := ParseConfig(config)
	if placer == nil {
		placer = NewHosePrimaryPlacer()
	}
	if solver == nil {
		solver = NewGreedyMappingSolver()
	}
	requests := map[api.RequestID]*Request{}
	c := &AdmissionController{
		topology:         t,
		placer:           placer,
		solver:           solver,
		policy:           policy,
		search:           newBackupPlacementSearch(t, *config.Admission.RandomSeed),
		sharing:          NewBandwidthSharingEngine(t, policy, requests),
		requests:         requests,
		collocation:      *config.Admission.Collocation,
		bandwidthSharing: *config.Admission.BandwidthSharing,
		solverRetries:    *config.Admission.SolverRetries,
		metrics:          recorder,
	}
	klog.Infof("Admission controller created: collocation %v, bandwidth sharing %v, "+
		"failure domain level %v, solver retries %v",
		c.collocation, c.bandwidthSharing, *config.Admission.FailureDomainLevel, c.solverRetries)
	return c
}

// Arrive places the primaries of a new request, protects them with backups, and
// regroups the shared backup bandwidth of the links the request touches.
// Rejection is a normal outcome, reported in the result with its reason; a rejected
// request holds no resource.
func (c *AdmissionController) Arrive(r *Request) *ProtectionResult {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.requests[r.id]; ok {
		panic(fmt.Sprintf("Assert Failure: [%v]: request arrived twice", r.Key()))
	}
	c.requests[r.id] = r
	klog.Infof("[%v]: Arriving with %v VMs of bandwidth %v...", r.Key(), r.vmNum, r.bandwidth)

	var result *ProtectionResult
	placement, ok := c.placer.Place(c.topology, r)
	if !ok {
		r.admitted = false
		r.rejectionReason = api.RejectionPrimaryEmbedding
		result = &ProtectionResult{
			RejectionReason: api.RejectionPrimaryEmbedding,
			Scope:           NoNode,
			Trace:           []RetryState{Rejected},
		}
		klog.Infof("[%v]: Rejected: %v", r.Key(), result.RejectionReason)
	} else {
		commitPrimaryPlacement(c.topology, r, placement)
		r.backupNeeded = c.policy.GetBackupNeeded(c.topology, r)
		klog.Infof("[%v]: Needs %v backups", r.Key(), r.backupNeeded)
		result = c.protectRequest(r, r.subtree, c.collocation)
		c.shareBackupBandwidth(r, result)
	}
	c.metrics.ObserveArrival(result.Admitted, result.RejectionReason)
	c.updateMetrics()
	return result
}

// Depart releases every resource of an admitted request and regroups the shared
// backup bandwidth of the links it touched. Departing an unknown, rejected or already
// departed request is a no-op.
func (c *AdmissionController) Depart(id api.RequestID) {
	c.lock.Lock()
	defer c.lock.Unlock()

	r, ok := c.requests[id]
	if !ok || !r.admitted || r.departed {
		klog.V(4).Infof("[%v]: Nothing to release on departure", internal.Key(id))
		return
	}
	klog.Infof("[%v]: Departing...", r.Key())
	touched := c.topology.ReleaseRequest(r, api.AnyVM)
	r.departed = true
	if c.bandwidthSharing && !c.sharing.Recompute(touched) {
		panic(fmt.Sprintf("Assert Failure: [%v]: links exceed their capacity after a departure", r.Key()))
	}
	c.updateMetrics()
}

// ProtectRequest runs one admission attempt for a request whose primaries the caller
// already committed, starting the backup search at scope instead of the request's own
// subtree. Unlike Arrive, it neither places primaries nor counts an arrival, but an
// admitted request still gets its shared backup bandwidth regrouped.
func (c *AdmissionController) ProtectRequest(r *Request, scope NodeID, collocate bool) *ProtectionResult {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.requests[r.id]; !ok {
		c.requests[r.id] = r
	}
	if r.backupNeeded == 0 {
		r.backupNeeded = c.policy.GetBackupNeeded(c.topology, r)
	}
	result := c.protectRequest(r, scope, collocate)
	c.shareBackupBandwidth(r, result)
	c.updateMetrics()
	return result
}

// shareBackupBandwidth regroups the links an admitted request touches, rejecting the
// request if they cannot hold the regrouped bandwidth.
func (c *AdmissionController) shareBackupBandwidth(r *Request, result *ProtectionResult) {
	if !result.Admitted || !c.bandwidthSharing || c.sharing.Recompute(c.topology.GetTouchedLinks(r.id)) {
		return
	}
	klog.Warningf("[%v]: Shared backup bandwidth cannot be committed, rejecting", r.Key())
	c.reject(r, api.RejectionSharedBandwidth)
	result.Admitted = false
	result.RejectionReason = api.RejectionSharedBandwidth
	result.Scope = NoNode
	result.Trace = append(result.Trace, Rejected)
}

// maxStateTransitions bounds the admission loop: each scope of each collocation mode
// is searched, mapped and retried at most once.
func (c *AdmissionController) maxStateTransitions() int {
	return 3*c.search.maxSearchSteps() + 2
}

func (c *AdmissionController) protectRequest(r *Request, scope NodeID, collocate bool) *ProtectionResult {
	result := &ProtectionResult{Scope: NoNode}
	reason := api.RejectionNone
	state := Searching
	for i := 0; i < c.maxStateTransitions(); i++ {
		result.Trace = append(result.Trace, state)
		c.metrics.ObserveState(string(state))
		switch state {
		case Searching:
			found, mode := c.search.Search(r, scope, collocate)
			collocate = mode
			if found == NoNode {
				reason = api.RejectionBackupEmbedding
				state = Rejected
			} else {
				scope = found
				state = Mapping
			}
		case Mapping:
			if c.mapBackupBandwidth(r) {
				state = Admitted
			} else if c.topology.GetParent(scope) != NoNode {
				state = RetryWider
			} else if collocate {
				state = RetryNoCollocate
			} else {
				reason = api.RejectionBackupMappingBandwidth
				state = Rejected
			}
		case RetryWider:
			c.topology.ReleaseRequest(r, api.BackupVM)
			scope = c.topology.GetParent(scope)
			klog.Infof("[%v]: Retrying backup placement in wider subtree %v",
				r.Key(), c.topology.GetNode(scope).address)
			state = Searching
		case RetryNoCollocate:
			c.topology.ReleaseRequest(r, api.BackupVM)
			scope = r.subtree
			collocate = false
			klog.Infof("[%v]: Retrying backup placement from subtree %v without collocation",
				r.Key(), c.topology.GetNode(scope).address)
			state = Searching
		case Admitted:
			r.admitted = true
			r.rejectionReason = api.RejectionNone
			r.recordAdmission()
			result.Admitted = true
			result.RejectionReason = api.RejectionNone
			result.Scope = scope
			result.Collocated = collocate
			klog.Infof("[%v]: Admitted with backups in subtree %v: %v, reserved backup bandwidth %v",
				r.Key(), c.topology.GetNode(scope).address, r.backups, r.reservedBackupBandwidth)
			return result
		case Rejected:
			c.reject(r, reason)
			result.RejectionReason = reason
			result.Collocated = collocate
			return result
		default:
			panic(fmt.Sprintf("Assert Failure: [%v]: unknown admission state %v", r.Key(), state))
		}
	}
	panic(fmt.Sprintf("Assert Failure: [%v]: admission did not terminate in %v state transitions",
		r.Key(), c.maxStateTransitions()))
}

// reject releases the whole request, primaries included.
func (c *AdmissionController) reject(r *Request, reason api.RejectionReason) {
	touched := c.topology.ReleaseRequest(r, api.AnyVM)
	if c.bandwidthSharing && r.admitted {
		c.sharing.Recompute(touched)
	}
	r.admitted = false
	r.rejectionReason = reason
	r.clearAdmission()
	klog.Infof("[%v]: Rejected: %v", r.Key(), reason)
}

// mapBackupBandwidth asks the solver to confirm the tentative backups, then reserves
// the additional backup bandwidth and records which backup protects each primary.
// Solver errors and invalid results count as infeasible.
func (c *AdmissionController) mapBackupBandwidth(r *Request) bool {
	input := &MappingInput{
		Topology:          c.topology,
		Request:           r,
		Primaries:         r.primaries,
		Backups:           r.backups,
		FailureDomains:    c.policy.GetFailureDomains(c.topology, r),
		ResidualBandwidth: c.topology.GetResidualBandwidthSnapshot(),
	}
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.solverRetries > 0 {
		policy = backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(c.solverRetries))
	}
	var result *MappingResult
	err := backoff.RetryNotify(
		func() error {
			var err error
			result, err = c.solver.Solve(input)
			return err
		},
		policy,
		func(err error, _ time.Duration) {
			c.metrics.ObserveSolverError()
			klog.Warningf("[%v]: Bandwidth mapping solver failed, retrying: %v", r.Key(), err)
		})
	if err != nil {
		c.metrics.ObserveSolverError()
		klog.Warningf("[%v]: Bandwidth mapping solver unavailable, treating the placement as infeasible: %v",
			r.Key(), err)
		return false
	}
	if result == nil || result.Status != MappingFeasible || result.Objective < 0 {
		klog.Infof("[%v]: Bandwidth mapping infeasible for backups %v", r.Key(), r.backups)
		return false
	}
	if err := c.validateMappingResult(r, result); err != nil {
		klog.Warningf("[%v]: Invalid bandwidth mapping, treating the placement as infeasible: %v", r.Key(), err)
		return false
	}

	linkIDs := sortedLinkIDs(result.LinkBandwidth)
	reserved := 0.0
	for i, id := range linkIDs {
		l := c.topology.GetLink(id)
		if !l.ReserveBandwidth(result.LinkBandwidth[id], r.id, api.BackupVM) {
			klog.Warningf("[%v]: Link %v cannot reserve the mapped backup bandwidth %v, "+
				"treating the placement as infeasible", r.Key(), l.address, result.LinkBandwidth[id])
			for _, rid := range linkIDs[:i] {
				c.topology.GetLink(rid).ReleaseBandwidth(r.id, api.BackupVM)
			}
			return false
		}
		reserved += result.LinkBandwidth[id]
	}

	backups := map[VMID]*VirtualMachine{}
	for _, b := range r.backups {
		backups[b.id] = b
	}
	for _, p := range r.primaries {
		p.protectedBy = backups[result.PrimaryToBackup[p.id]]
	}
	r.reservedBackupBandwidth = reserved
	r.reservedBackupVMNum = int32(len(r.backups))
	return true
}

func (c *AdmissionController) validateMappingResult(r *Request, result *MappingResult) error {
	var errs *multierror.Error
	backups := map[VMID]*VirtualMachine{}
	for _, b := range r.backups {
		backups[b.id] = b
	}
	for _, p := range r.primaries {
		bid, ok := result.PrimaryToBackup[p.id]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("primary %v is not mapped", p))
			continue
		}
		b, ok := backups[bid]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("primary %v is mapped to unknown backup %v", p, bid))
			continue
		}
		if b.host == p.host {
			errs = multierror.Append(errs, fmt.Errorf("primary %v is mapped to backup %v on the same server", p, b))
		}
	}
	for id, bw := range result.LinkBandwidth {
		if id < 0 || int(id) >= len(c.topology.links) {
			errs = multierror.Append(errs, fmt.Errorf("unknown link %v", id))
		} else if bw < 0 {
			errs = multierror.Append(errs, fmt.Errorf("negative bandwidth %v on link %v",
				bw, c.topology.GetLink(id).address))
		}
	}
	return errs.ErrorOrNil()
}

func (c *AdmissionController) updateMetrics() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetReserved(
		c.getTotalReservedBackupBandwidth(), c.getTotalReservedBackupVMNum(), len(c.getAdmittedRequests()))
}

func (c *AdmissionController) GetTopology() *Topology {
	return c.topology
}

func (c *AdmissionController) GetFailureDomainPolicy() FailureDomainPolicy {
	return c.policy
}

func (c *AdmissionController) GetRequest(id api.RequestID) *Request {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.requests[id]
}

// GetAdmittedRequests returns the admitted requests not departed yet, in id order.
func (c *AdmissionController) GetAdmittedRequests() []*Request {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getAdmittedRequests()
}

func (c *AdmissionController) getAdmittedRequests() []*Request {
	admitted := []*Request{}
	for _, r := range c.requests {
		if r.admitted && !r.departed {
			admitted = append(admitted, r)
		}
	}
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].id < admitted[j].id })
	return admitted
}

// GetTotalReservedBackupBandwidth sums the backup bandwidth of all links, counting each
// sharing set once.
func (c *AdmissionController) GetTotalReservedBackupBandwidth() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getTotalReservedBackupBandwidth()
}

func (c *AdmissionController) getTotalReservedBackupBandwidth() float64 {
	bw := 0.0
	for _, l := range c.topology.links {
		bw += l.GetBackupBandwidth()
	}
	return bw
}

func (c *AdmissionController) GetTotalReservedBackupVMNum() int32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getTotalReservedBackupVMNum()
}

func (c *AdmissionController) getTotalReservedBackupVMNum() int32 {
	n := int32(0)
	for _, pm := range c.topology.servers {
		for _, vm := range pm.slots {
			if vm.kind == api.BackupVM {
				n++
			}
		}
	}
	return n
}

// GetActiveVMsAfterFailure answers what would serve the request if the node failed.
func (c *AdmissionController) GetActiveVMsAfterFailure(id api.RequestID, failed NodeID) VMList {
	c.lock.Lock()
	defer c.lock.Unlock()
	r, ok := c.requests[id]
	if !ok {
		return nil
	}
	return c.topology.GetActiveVMsAfterFailure(r, failed)
}

func (c *AdmissionController) GetRequestStatus(id api.RequestID) *api.RequestStatus {
	c.lock.Lock()
	defer c.lock.Unlock()
	r, ok := c.requests[id]
	if !ok {
		return nil
	}
	s := r.GetAPIStatus(c.topology)
	return &s
}

func (c *AdmissionController) GetLinkStatuses() []api.LinkStatus {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.topology.GetAPILinkStatuses()
}

func (c *AdmissionController) CheckInvariants() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.topology.CheckInvariants()
}
