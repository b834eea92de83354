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

package simulation

import (
	"testing"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	common.InitAll()
}

const testTopologyYaml = `
topology:
  aggsPerCore: 2
  torsPerAgg: 2
  serversPerTor: 2
  serverVMSlots: 4
  serverLinkCapacity: 1000
  torLinkCapacity: 1000
  aggLinkCapacity: 1000
`

type eventKey struct {
	Time float64
	Type EventType
	ID   api.RequestID
}

func drain(f EventFeed) []eventKey {
	keys := []eventKey{}
	for {
		e, ok := f.Next()
		if !ok {
			return keys
		}
		keys = append(keys, eventKey{e.Time, e.Type, e.Request.ID})
	}
}

func TestTimelineFeedOrder(t *testing.T) {
	feed, err := NewTimelineFeed([]api.RequestSpec{
		{ID: 0, VMNumber: 1, ArrivalTime: 0, DepartureTime: 5},
		{ID: 1, VMNumber: 1, ArrivalTime: 5, DepartureTime: 5},
		{ID: 2, VMNumber: 1, ArrivalTime: 5, DepartureTime: 8},
		{ID: 3, VMNumber: 1, ArrivalTime: 1, DepartureTime: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, []eventKey{
		{0, Arrival, 0},
		{1, Arrival, 3},
		// departures free resources before the arrivals at the same time
		{5, Departure, 0},
		{5, Departure, 3},
		{5, Arrival, 1},
		{5, Arrival, 2},
		// a zero-length request departs after it arrives
		{5, Departure, 1},
		{8, Departure, 2},
	}, drain(feed))
}

func TestTimelineFeedErrors(t *testing.T) {
	_, err := NewTimelineFeed([]api.RequestSpec{
		{ID: 0, VMNumber: 1, ArrivalTime: 0, DepartureTime: 1},
		{ID: 0, VMNumber: 2, ArrivalTime: 1, DepartureTime: 2},
	})
	assert.EqualError(t, err, "request-0: duplicate request id")

	_, err = NewTimelineFeed([]api.RequestSpec{{ID: 1, VMNumber: 0, ArrivalTime: 0, DepartureTime: 1}})
	assert.EqualError(t, err, "request-1: VM number must be positive, got 0")
}

func TestTraceFeed(t *testing.T) {
	feed, err := NewTraceFeed("testdata/trace.yaml")
	require.NoError(t, err)
	assert.Len(t, drain(feed), 6)

	_, err = NewTraceFeed("testdata/missing.yaml")
	assert.Error(t, err)
	_, err = NewTraceFeed("testdata/invalid_trace.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "departure time 1 is before arrival time 5")
}

func newTestSimulationSpec(seed int64) *api.SimulationSpec {
	return &api.SimulationSpec{
		RequestNumber:    common.PtrInt32(200),
		ArrivalRate:      2,
		MeanHoldingTime:  10,
		MinVMNumber:      2,
		MaxVMNumber:      6,
		BandwidthChoices: []float64{50, 100, 200},
		RandomSeed:       seed,
	}
}

func TestGenerateRequests(t *testing.T) {
	s := newTestSimulationSpec(7)
	requests := GenerateRequests(s)
	require.Len(t, requests, 200)
	assert.Equal(t, requests, GenerateRequests(s), "same seed, same requests")
	assert.NotEqual(t, requests, GenerateRequests(newTestSimulationSpec(8)))

	choices := map[float64]bool{50: true, 100: true, 200: true}
	last := 0.0
	for i, r := range requests {
		assert.Equal(t, api.RequestID(i), r.ID)
		assert.True(t, r.VMNumber >= 2 && r.VMNumber <= 6, "VM number %v", r.VMNumber)
		assert.True(t, choices[r.Bandwidth], "bandwidth %v", r.Bandwidth)
		assert.True(t, r.ArrivalTime >= last, "arrivals in time order")
		assert.True(t, r.DepartureTime >= r.ArrivalTime)
		last = r.ArrivalTime
	}
	// 200 arrivals at rate 2 span about 100 time units
	assert.InDelta(t, 100, requests[len(requests)-1].ArrivalTime, 30)

	assert.Len(t, drain(NewPoissonGenerator(s)), 400)
}

func TestRunTrace(t *testing.T) {
	config := api.NewConfigFromYaml(testTopologyYaml + `
simulation:
  traceFile: testdata/trace.yaml
  checkInvariants: true
`)
	s, err := NewSimulatorFromConfig(config, nil)
	require.NoError(t, err)
	summary, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, int32(3), summary.RequestNumber)
	assert.Equal(t, int32(2), summary.AdmittedNumber)
	assert.Equal(t, int32(1), summary.RejectedNumber)
	assert.Equal(t, map[api.RejectionReason]int32{api.RejectionPrimaryEmbedding: 1}, summary.Rejections)
	assert.InDelta(t, 2.0/3, summary.AcceptanceRatio, 1e-9)
	// request 0 needs 4 backups and request 2 needs 2
	assert.Equal(t, 3.0, summary.MeanReservedBackupVMNumber)
	assert.Equal(t, int32(6), summary.PeakTotalBackupVMNumber)
	// 4, 4, 6, 4, 4 and 0 backups after the 6 events
	assert.InDelta(t, 22.0/6, summary.MeanTotalBackupVMNumber, 1e-9)

	require.Len(t, summary.Requests, 3)
	assert.True(t, summary.Requests[0].Admitted)
	assert.Equal(t, api.RejectionPrimaryEmbedding, summary.Requests[1].RejectionReason)
	assert.Equal(t, map[api.NodeAddress]int32{"server2": 2}, summary.Requests[2].PrimaryPlacement)
	assert.Equal(t, int32(0), s.GetController().GetTotalReservedBackupVMNum())
}

func TestRunIsReproducible(t *testing.T) {
	run := func() *Summary {
		config := api.NewConfigFromYaml(testTopologyYaml + `
simulation:
  requestNumber: 60
  arrivalRate: 1
  meanHoldingTime: 20
  minVMNumber: 1
  maxVMNumber: 8
  bandwidthChoices: [10, 100, 300]
  randomSeed: 3
  checkInvariants: true
`)
		s, err := NewSimulatorFromConfig(config, nil)
		require.NoError(t, err)
		summary, err := s.Run()
		require.NoError(t, err)
		return summary
	}

	first := run()
	assert.Equal(t, int32(60), first.RequestNumber)
	assert.Equal(t, first.RequestNumber, first.AdmittedNumber+first.RejectedNumber)
	assert.Equal(t, first, run())
}

type sliceFeed struct {
	events []*Event
}

func (f *sliceFeed) Next() (*Event, bool) {
	if len(f.events) == 0 {
		return nil, false
	}
	e := f.events[0]
	f.events = f.events[1:]
	return e, true
}

func TestRunRecoversDefects(t *testing.T) {
	config := api.NewConfigFromYaml(testTopologyYaml)
	s, err := NewSimulatorFromConfig(config, nil)
	require.NoError(t, err)
	s.feed = &sliceFeed{events: []*Event{
		{Time: 0, Type: Arrival, Request: &api.RequestSpec{ID: 0, VMNumber: 2, DepartureTime: 1}},
		{Time: 0, Type: Arrival, Request: &api.RequestSpec{ID: 0, VMNumber: 2, DepartureTime: 1}},
	}}

	summary, err := s.Run()
	assert.Nil(t, summary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request arrived twice")
}
