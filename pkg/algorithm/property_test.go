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
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/microsoft/hivedbackup/pkg/api"
)

// holdsNothing checks that no slot or link of the topology refers to the request.
func holdsNothing(topo *Topology, r *Request) bool {
	for _, pm := range topo.GetServers() {
		for _, vm := range pm.GetVMs() {
			if vm.GetID().Request == r.GetID() {
				return false
			}
		}
	}
	return len(topo.GetTouchedLinks(r.GetID())) == 0
}

func survivesEveryFailure(c *AdmissionController, r *Request) bool {
	for _, d := range c.GetFailureDomainPolicy().GetFailureDomains(c.GetTopology(), r) {
		if int32(len(c.GetActiveVMsAfterFailure(r.GetID(), d))) != r.GetVMNum() {
			return false
		}
	}
	return true
}

// runRandomEvents arrives n random requests, departing a random admitted one every
// third event, and checks the ledger after each event.
func runRandomEvents(seed int64, n int, level int, sharing bool) error {
	config := newTestConfig(fmt.Sprintf(
		"admission:\n  failureDomainLevel: %d\n  bandwidthSharing: %v\n  randomSeed: %d\n", level, sharing, seed))
	c := NewAdmissionController(config, nil, nil, nil)
	rnd := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		if i%3 == 2 {
			if admitted := c.GetAdmittedRequests(); len(admitted) > 0 {
				r := admitted[rnd.Intn(len(admitted))]
				c.Depart(r.GetID())
				if !holdsNothing(c.GetTopology(), r) {
					return fmt.Errorf("%v holds resources after departure", r.Key())
				}
			}
		}
		r := NewRequest(api.RequestID(i), 1+rnd.Int31n(12), float64(10*rnd.Intn(30)), float64(i), float64(i+10))
		result := c.Arrive(r)
		if len(result.Trace) > c.maxStateTransitions() {
			return fmt.Errorf("%v visited %v states", r.Key(), len(result.Trace))
		}
		if result.Admitted != r.IsAdmitted() {
			return fmt.Errorf("%v admission result disagrees with the request", r.Key())
		}
		if !result.Admitted && !holdsNothing(c.GetTopology(), r) {
			return fmt.Errorf("%v holds resources after rejection %v", r.Key(), result.RejectionReason)
		}
		if err := c.CheckInvariants(); err != nil {
			return err
		}
		for _, a := range c.GetAdmittedRequests() {
			if !survivesEveryFailure(c, a) {
				return fmt.Errorf("%v does not survive every failure", a.Key())
			}
		}
	}
	for _, r := range c.GetAdmittedRequests() {
		c.Depart(r.GetID())
	}
	if bw, vms := c.GetTotalReservedBackupBandwidth(), c.GetTotalReservedBackupVMNum(); bw != 0 || vms != 0 {
		return fmt.Errorf("%v backup bandwidth and %v backup VMs left after all departures", bw, vms)
	}
	return nil
}

func TestAdmissionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("random arrivals and departures keep the ledger consistent", prop.ForAll(
		func(seed int64, n int, level int, sharing bool) bool {
			if err := runRandomEvents(seed, n, level, sharing); err != nil {
				t.Logf("seed %v, %v events, level %v, sharing %v: %v", seed, n, level, sharing, err)
				return false
			}
			return true
		},
		gen.Int64Range(1, 1<<30),
		gen.IntRange(1, 30),
		gen.IntRange(0, api.MaxFailureDomainLevel),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
