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

	"github.com/microsoft/hivedbackup/pkg/common"
	"k8s.io/klog"
)

//go:generate mockgen -destination=mocks/solver.go -package=mocks github.com/microsoft/hivedbackup/pkg/algorithm BandwidthMappingSolver,PrimaryPlacer

// MappingInput is a snapshot of a tentative placement. Solvers must not mutate the
// topology through it.
type MappingInput struct {
	Topology          *Topology
	Request           *Request
	Primaries         VMList
	Backups           VMList
	FailureDomains    []NodeID
	ResidualBandwidth map[LinkID]float64
}

type MappingResult struct {
	Status MappingStatus
	// Total additional bandwidth, negative if infeasible.
	Objective float64
	// Additional backup bandwidth to reserve per link.
	LinkBandwidth map[LinkID]float64
	// The backup taking over each primary when the primary's fault domain fails.
	PrimaryToBackup map[VMID]VMID
}

func newInfeasibleMappingResult() *MappingResult {
	return &MappingResult{Status: MappingInfeasible, Objective: -1}
}

// BandwidthMappingSolver decides if the backups of a tentative placement can take over
// the primaries of every single fault domain with the bandwidth left on the links.
// It must be deterministic for a given input. An error means the solver itself failed,
// not that the placement is infeasible.
type BandwidthMappingSolver interface {
	Solve(input *MappingInput) (*MappingResult, error)
}

// greedyMappingSolver maps each primary to the nearest backup surviving all the fault
// domains of the primary, keeping the backups of primaries sharing a domain distinct,
// then reserves on each link the worst hose bandwidth over all failures minus what the
// primaries already reserve there.
type greedyMappingSolver struct{}

func NewGreedyMappingSolver() BandwidthMappingSolver {
	return &greedyMappingSolver{}
}

func (s *greedyMappingSolver) Solve(input *MappingInput) (*MappingResult, error) {
	t := input.Topology
	r := input.Request
	domainsOf := map[VMID][]NodeID{}
	for _, p := range input.Primaries {
		for _, d := range input.FailureDomains {
			if t.IsUnder(p.host.GetID(), d) {
				domainsOf[p.id] = append(domainsOf[p.id], d)
			}
		}
	}

	mapping, ok := s.mapPrimaries(t, input, domainsOf)
	if !ok {
		klog.Infof("[%v]: No backup mapping survives every fault domain", r.Key())
		return newInfeasibleMappingResult(), nil
	}

	primaryBandwidth := map[LinkID]float64{}
	for id, n := range countVMsUnder(t, input.Primaries) {
		if l := t.GetNode(id).uplink; l != nil {
			primaryBandwidth[l.id] = r.hoseBandwidth(n, r.vmNum)
		}
	}
	deltas := map[LinkID]float64{}
	for _, d := range input.FailureDomains {
		active := VMList{}
		for _, p := range input.Primaries {
			if t.IsUnder(p.host.GetID(), d) {
				active = append(active, mapping[p])
			} else {
				active = append(active, p)
			}
		}
		for id, n := range countVMsUnder(t, active) {
			l := t.GetNode(id).uplink
			if l == nil || t.IsUnder(id, d) {
				continue
			}
			if delta := r.hoseBandwidth(n, r.vmNum) - primaryBandwidth[l.id]; delta > deltas[l.id] {
				deltas[l.id] = delta
			}
		}
	}

	result := &MappingResult{
		Status:          MappingFeasible,
		LinkBandwidth:   map[LinkID]float64{},
		PrimaryToBackup: map[VMID]VMID{},
	}
	for _, id := range sortedLinkIDs(deltas) {
		delta := deltas[id]
		if common.FloatEqual(delta, 0) {
			continue
		}
		if !common.FloatLE(delta, input.ResidualBandwidth[id]) {
			klog.Infof("[%v]: Link %v needs %v backup bandwidth but has %v left",
				r.Key(), t.GetLink(id).address, delta, input.ResidualBandwidth[id])
			return newInfeasibleMappingResult(), nil
		}
		result.LinkBandwidth[id] = delta
		result.Objective += delta
	}
	for p, b := range mapping {
		result.PrimaryToBackup[p.id] = b.id
	}
	return result, nil
}

// mapPrimaries assigns a backup to each primary, the primaries of the most loaded
// servers first since they have the fewest choices.
func (s *greedyMappingSolver) mapPrimaries(
	t *Topology, input *MappingInput, domainsOf map[VMID][]NodeID) (map[*VirtualMachine]*VirtualMachine, bool) {

	r := input.Request
	primaries := append(VMList{}, input.Primaries...)
	sort.SliceStable(primaries, func(i, j int) bool {
		ni := primaries[i].host.GetHostedVMNum(r.id, primaries[i].kind)
		nj := primaries[j].host.GetHostedVMNum(r.id, primaries[j].kind)
		if ni != nj {
			return ni > nj
		}
		return primaries[i].id.Index < primaries[j].id.Index
	})

	mapping := map[*VirtualMachine]*VirtualMachine{}
	// backups already taken in each domain
	taken := map[NodeID]map[*VirtualMachine]bool{}
	for _, p := range primaries {
		candidates := VMList{}
		for _, b := range input.Backups {
			survives := b.host != p.host
			for _, d := range domainsOf[p.id] {
				if t.IsUnder(b.host.GetID(), d) {
					survives = false
					break
				}
			}
			for _, d := range domainsOf[p.id] {
				if taken[d][b] {
					survives = false
					break
				}
			}
			if survives {
				candidates = append(candidates, b)
			}
		}
		if len(candidates) == 0 {
			return nil, false
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			li := t.GetNode(t.LCA(p.host.GetID(), candidates[i].host.GetID())).level
			lj := t.GetNode(t.LCA(p.host.GetID(), candidates[j].host.GetID())).level
			if li != lj {
				return li < lj
			}
			return candidates[i].id.Index < candidates[j].id.Index
		})
		b := candidates[0]
		mapping[p] = b
		for _, d := range domainsOf[p.id] {
			if taken[d] == nil {
				taken[d] = map[*VirtualMachine]bool{}
			}
			taken[d][b] = true
		}
	}
	return mapping, true
}
