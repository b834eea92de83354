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
	"testing"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sharingFixture struct {
	topo     *Topology
	engine   *BandwidthSharingEngine
	requests map[api.RequestID]*Request
	link     *Link
}

// newSharingFixture places one request per server and reserves its backup need on
// the uplink of agg0.
func newSharingFixture(t *testing.T, servers map[api.RequestID]string, needs map[api.RequestID]float64) *sharingFixture {
	topo := newTestTopology()
	f := &sharingFixture{
		topo:     topo,
		requests: map[api.RequestID]*Request{},
		link:     linkOf(topo, "agg0-core0"),
	}
	f.engine = NewBandwidthSharingEngine(topo, NewLevelFailureDomainPolicy(ServerLevel), f.requests)
	for id, server := range servers {
		r := NewRequest(id, 1, 0, 0, 1)
		placeTestPrimaries(topo, r, map[string]int32{server: 1})
		f.requests[id] = r
		require.True(t, f.link.ReserveBandwidth(needs[id], id, api.BackupVM))
	}
	return f
}

func TestSharingExclusiveRequests(t *testing.T) {
	f := newSharingFixture(t,
		map[api.RequestID]string{0: "server0", 1: "server3"},
		map[api.RequestID]float64{0: 100, 1: 60})
	require.Equal(t, 160.0, f.link.GetBackupBandwidth())

	assert.True(t, f.engine.Recompute([]*Link{f.link}))
	sets := f.link.GetSharingSets()
	if assert.Len(t, sets, 1) {
		assert.Equal(t, []api.RequestID{0, 1}, sets[0].GetMembers())
		assert.Equal(t, 100.0, sets[0].GetBandwidth())
	}
	assert.Equal(t, 100.0, f.link.GetBackupBandwidth())
	assert.Equal(t, [][]api.RequestID{{0, 1}}, f.link.GetAPIStatus(f.topo).SharingSets)
}

func TestSharingKeepsOverlappingRequestsApart(t *testing.T) {
	f := newSharingFixture(t,
		map[api.RequestID]string{0: "server0", 1: "server3", 2: "server0"},
		map[api.RequestID]float64{0: 100, 1: 60, 2: 50})

	assert.True(t, f.engine.Recompute([]*Link{f.link}))
	sets := f.link.GetSharingSets()
	if assert.Len(t, sets, 1) {
		assert.Equal(t, []api.RequestID{0, 1}, sets[0].GetMembers())
	}
	// request 2 fails with request 0 and stays alone
	assert.Equal(t, 150.0, f.link.GetBackupBandwidth())
}

func TestSharingAfterDeparture(t *testing.T) {
	f := newSharingFixture(t,
		map[api.RequestID]string{0: "server0", 1: "server3", 2: "server6"},
		map[api.RequestID]float64{0: 100, 1: 60, 2: 80})
	require.True(t, f.engine.Recompute([]*Link{f.link}))
	require.Equal(t, 100.0, f.link.GetBackupBandwidth())
	before := f.link.GetBackupBandwidth()

	touched := f.topo.ReleaseRequest(f.requests[0], api.AnyVM)
	assert.Equal(t, int32(4), machineOf(f.topo, "server0").GetAvailableVMNum())
	assert.False(t, f.link.HasRequest(0))
	sets := f.link.GetSharingSets()
	if assert.Len(t, sets, 1) {
		assert.Equal(t, []api.RequestID{1, 2}, sets[0].GetMembers())
		assert.Equal(t, 80.0, sets[0].GetBandwidth())
	}

	assert.True(t, f.engine.Recompute(touched))
	assert.Equal(t, 80.0, f.link.GetBackupBandwidth())
	assert.True(t, f.link.GetBackupBandwidth() <= before)

	// a set left with a single member is dropped
	f.topo.ReleaseRequest(f.requests[1], api.AnyVM)
	assert.Empty(t, f.link.GetSharingSets())
	assert.Equal(t, 80.0, f.link.GetBackupBandwidth())
}

func TestSharingSetDissolvedByNewBackupBandwidth(t *testing.T) {
	f := newSharingFixture(t,
		map[api.RequestID]string{0: "server0", 1: "server3"},
		map[api.RequestID]float64{0: 100, 1: 60})
	require.True(t, f.engine.Recompute([]*Link{f.link}))

	// 1000 - 100 shared is left, but the dissolved set frees nothing: 160 + 850 > 1000
	assert.False(t, f.link.ReserveBandwidth(850, 0, api.BackupVM))
	assert.Len(t, f.link.GetSharingSets(), 1)

	assert.True(t, f.link.ReserveBandwidth(10, 0, api.BackupVM))
	assert.Empty(t, f.link.GetSharingSets())
	assert.Equal(t, 170.0, f.link.GetBackupBandwidth())

	assert.True(t, f.engine.Recompute([]*Link{f.link}))
	assert.Equal(t, 110.0, f.link.GetBackupBandwidth())
}

func TestRecomputeNeverIncreasesBackupBandwidth(t *testing.T) {
	f := newSharingFixture(t,
		map[api.RequestID]string{0: "server0", 1: "server3", 2: "server6", 3: "server0"},
		map[api.RequestID]float64{0: 100, 1: 100, 2: 10, 3: 90})
	f.link.setSharingSets([]*SharingSet{newSharingSet([]api.RequestID{0, 1, 2, 3}, 100)})
	require.Equal(t, 100.0, f.link.GetBackupBandwidth())

	// the greedy grouping {0, 1, 2} plus 3 alone would reserve 190
	assert.True(t, f.engine.Recompute([]*Link{f.link}))
	assert.Equal(t, 100.0, f.link.GetBackupBandwidth())
	assert.Len(t, f.link.GetSharingSets(), 1)

	f.link.setSharingSets(nil)
	assert.True(t, f.engine.Recompute([]*Link{f.link}))
	assert.Equal(t, 190.0, f.link.GetBackupBandwidth())
}

func TestReserveTenantsSharedBandwidthOverCapacity(t *testing.T) {
	f := newSharingFixture(t,
		map[api.RequestID]string{0: "server0", 1: "server3"},
		map[api.RequestID]float64{0: 100, 1: 60})
	f.link.reservations = append(f.link.reservations,
		BandwidthReservation{Request: 9, Bandwidth: 950, Kind: api.PrimaryVM})

	assert.False(t, f.engine.ReserveTenantsSharedBandwidth(f.link))
	assert.Empty(t, f.link.GetSharingSets())
	assert.False(t, f.engine.Recompute([]*Link{f.link}))
	assert.Empty(t, f.engine.ReleaseTenantsSharedBandwidth(f.link))
}
