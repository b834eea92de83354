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
	"strings"
	"testing"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/microsoft/hivedbackup/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	common.InitAll()
}

func TestAdmissionCases(t *testing.T) {
	cases := []struct {
		config string
		steps  string
	}{
		{"testdata/config.yaml", "testdata/collocation.yaml"},
		{"testdata/config.yaml", "testdata/embedding.yaml"},
		{"testdata/config_narrow_core.yaml", "testdata/mapping.yaml"},
	}
	for _, c := range cases {
		t.Run(c.steps, func(t *testing.T) {
			NewAdmissionTester(t, c.config).ExecuteCaseFromYamlFile(c.steps)
		})
	}
}

func newTestAdmissionController() *AdmissionController {
	return NewAdmissionController(newTestConfig(""), nil, nil, nil)
}

func assertTopologyEmpty(t *testing.T, topo *Topology) {
	assert.Equal(t, int32(48), topo.GetServers().availableVMNum())
	for _, l := range topo.GetLinks() {
		assert.Empty(t, l.GetReservations(), "link %v", l.GetAddress())
		assert.Empty(t, l.GetSharingSets(), "link %v", l.GetAddress())
	}
}

func TestArriveAdmitsWithinOwnTOR(t *testing.T) {
	c := newTestAdmissionController()
	result := c.Arrive(NewRequest(0, 3, 100, 0, 10))

	assert.True(t, result.Admitted)
	assert.Equal(t, api.RejectionNone, result.RejectionReason)
	assert.Equal(t, nodeOf(c.GetTopology(), "tor0"), result.Scope)
	assert.Equal(t, []RetryState{Searching, Mapping, Admitted}, result.Trace)

	s := c.GetRequestStatus(0)
	require.NotNil(t, s)
	assert.True(t, s.Admitted)
	assert.Equal(t, api.NodeAddress("server0"), s.Subtree)
	assert.Equal(t, map[api.NodeAddress]int32{"server0": 3}, s.PrimaryPlacement)
	assert.Equal(t, int32(3), s.BackupNeeded)
	assert.Equal(t, int32(3), s.ReservedBackupVMNumber)
	assert.NotContains(t, s.BackupPlacement, api.NodeAddress("server0"))
	assert.Equal(t, 10.0, s.DepartureTime)
	assert.Equal(t, int32(3), c.GetTotalReservedBackupVMNum())
	assert.NoError(t, c.CheckInvariants())
}

func TestRejectedRequestHoldsNothing(t *testing.T) {
	c := newTestAdmissionController()
	result := c.Arrive(NewRequest(0, 49, 10, 0, 1))
	assert.False(t, result.Admitted)
	assert.Equal(t, api.RejectionPrimaryEmbedding, result.RejectionReason)
	assert.Equal(t, NoNode, result.Scope)

	// 48 primaries leave no slot for the backups
	result = c.Arrive(NewRequest(1, 48, 0, 0, 1))
	assert.False(t, result.Admitted)
	assert.Equal(t, api.RejectionBackupEmbedding, result.RejectionReason)
	assert.Equal(t, []RetryState{Searching, Rejected}, result.Trace)

	assertTopologyEmpty(t, c.GetTopology())
	assert.Empty(t, c.GetAdmittedRequests())
	for _, id := range []api.RequestID{0, 1} {
		s := c.GetRequestStatus(id)
		require.NotNil(t, s)
		assert.False(t, s.Admitted)
		assert.Empty(t, s.PrimaryPlacement)
		assert.Empty(t, s.BackupPlacement)
	}
	assert.Nil(t, c.GetRequestStatus(2), "unknown request")
}

func TestArriveTwicePanics(t *testing.T) {
	c := newTestAdmissionController()
	c.Arrive(NewRequest(0, 2, 10, 0, 1))
	assert.Panics(t, func() { c.Arrive(NewRequest(0, 2, 10, 0, 1)) })
}

func TestDepartReleasesEverything(t *testing.T) {
	c := newTestAdmissionController()
	for id := api.RequestID(0); id < 6; id++ {
		c.Arrive(NewRequest(id, 2+int32(id), 50, float64(id), 100))
	}
	admitted := c.GetAdmittedRequests()
	require.NotEmpty(t, admitted)
	for i := 1; i < len(admitted); i++ {
		assert.True(t, admitted[i-1].GetID() < admitted[i].GetID(), "admitted requests in id order")
	}
	assert.NoError(t, c.CheckInvariants())

	for id := api.RequestID(0); id < 6; id++ {
		c.Depart(id)
		assert.NoError(t, c.CheckInvariants())
	}
	assertTopologyEmpty(t, c.GetTopology())
	assert.Equal(t, 0.0, c.GetTotalReservedBackupBandwidth())
	assert.Equal(t, int32(0), c.GetTotalReservedBackupVMNum())
	assert.Empty(t, c.GetAdmittedRequests())
	for _, r := range admitted {
		assert.True(t, r.IsDeparted())
		assert.NotNil(t, c.GetRequest(r.GetID()), "departed requests stay known")
	}
}

func TestDepartedRequestKeepsItsStatus(t *testing.T) {
	c := newTestAdmissionController()
	require.True(t, c.Arrive(NewRequest(0, 4, 100, 0, 10)).Admitted)
	r := c.GetRequest(0)
	bw, vms := r.GetReservedBackupBandwidth(), r.GetReservedBackupVMNum()
	assert.True(t, bw > 0)
	assert.Equal(t, int32(4), vms)
	before := c.GetRequestStatus(0)
	assert.Equal(t, map[api.NodeAddress]int32{"server0": 4}, before.PrimaryPlacement)
	require.NotEmpty(t, before.BackupPlacement)

	c.Depart(0)
	assertTopologyEmpty(t, c.GetTopology())
	assert.Empty(t, r.GetPrimaries())
	assert.Empty(t, r.GetBackups())
	assert.Equal(t, bw, r.GetReservedBackupBandwidth())
	assert.Equal(t, vms, r.GetReservedBackupVMNum())
	assert.Equal(t, before, c.GetRequestStatus(0))
	assert.Equal(t, 0.0, c.GetTotalReservedBackupBandwidth())
}

func TestAdmittedRequestsSurviveEveryFailure(t *testing.T) {
	for _, level := range []NodeLevel{ServerLevel, TorLevel, AggregateLevel} {
		config := newTestConfig(fmt.Sprintf("admission:\n  failureDomainLevel: %d\n", level))
		c := NewAdmissionController(config, nil, nil, nil)
		for id := api.RequestID(0); id < 8; id++ {
			c.Arrive(NewRequest(id, 2+int32(id)%5, 40, float64(id), 100))
		}
		if level == ServerLevel {
			require.NotEmpty(t, c.GetAdmittedRequests())
		}
		for _, r := range c.GetAdmittedRequests() {
			for _, d := range c.GetFailureDomainPolicy().GetFailureDomains(c.GetTopology(), r) {
				assert.Len(t, c.GetActiveVMsAfterFailure(r.GetID(), d), int(r.GetVMNum()),
					"level %v: %v after failure of %v", level, r.Key(), c.GetTopology().GetNode(d).GetAddress())
			}
		}
		assert.NoError(t, c.CheckInvariants())
	}
}

func TestProtectRequestWithoutCollocation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewAdmissionController(newTestConfig(""), nil, nil, metrics.NewRecorder(reg))
	topo := c.GetTopology()
	r := NewRequest(0, 5, 100, 0, 1)
	placeTestPrimaries(topo, r, map[string]int32{"server0": 4, "server1": 1})

	result := c.ProtectRequest(r, r.GetSubtree(), false)
	assert.True(t, result.Admitted)
	assert.Equal(t, int32(4), r.GetBackupNeeded())
	assert.False(t, result.Collocated)
	assert.Equal(t, nodeOf(topo, "tor0"), result.Scope)
	// server2 is the only non-hosting server of tor0
	assert.Equal(t, map[api.NodeAddress]int32{"server2": 4}, placementOf(r.GetBackups()))
	for _, p := range r.GetPrimaries() {
		require.NotNil(t, p.GetProtectedBy())
		assert.Equal(t, machineOf(topo, "server2"), p.GetProtectedBy().GetHost())
	}
	assert.Same(t, r, c.GetRequest(0))
	assert.NoError(t, c.CheckInvariants())

	// no arrival is counted, the reserved resources are
	expected := `
# HELP hivedbackup_active_requests Admitted requests not departed yet
# TYPE hivedbackup_active_requests gauge
hivedbackup_active_requests 1
# HELP hivedbackup_reserved_backup_vms Backup VM slots reserved on all servers
# TYPE hivedbackup_reserved_backup_vms gauge
hivedbackup_reserved_backup_vms 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hivedbackup_active_requests", "hivedbackup_reserved_backup_vms", "hivedbackup_requests_total"))
}

func TestLinkStatuses(t *testing.T) {
	c := newTestAdmissionController()
	c.Arrive(NewRequest(0, 6, 100, 0, 1))

	statuses := c.GetLinkStatuses()
	require.Len(t, statuses, len(c.GetTopology().GetLinks()))
	byChild := map[api.NodeAddress]api.LinkStatus{}
	for _, s := range statuses {
		byChild[s.Child] = s
	}
	assert.Equal(t, api.NodeAddress("tor0"), byChild["server0"].Parent)
	assert.Equal(t, 1000.0, byChild["server0"].Capacity)
	// 4 of the 6 primaries on server0 and 2 on server1
	assert.Equal(t, 200.0, byChild["server0"].PrimaryBandwidth)
	assert.Equal(t, 200.0, byChild["server1"].PrimaryBandwidth)
}
