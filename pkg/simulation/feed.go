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
	"container/heap"
	"io/ioutil"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/internal"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog"
)

// EventFeed yields the events of a run in time order. The arrival of a request is
// always yielded before its departure.
type EventFeed interface {
	Next() (*Event, bool)
}

// timelineFeed replays a fixed set of requests as arrival and departure events.
type timelineFeed struct {
	queue *eventQueue
}

// NewTimelineFeed checks the requests and schedules their arrivals and departures.
func NewTimelineFeed(requests []api.RequestSpec) (EventFeed, error) {
	ids := sets.NewInt32()
	q := &eventQueue{}
	for i := range requests {
		r := &requests[i]
		if err := internal.IsValidRequest(r); err != nil {
			return nil, err
		}
		if ids.Has(int32(r.ID)) {
			return nil, errors.Errorf("%v: duplicate request id", internal.Key(r.ID))
		}
		ids.Insert(int32(r.ID))
		*q = append(*q,
			&Event{Time: r.ArrivalTime, Type: Arrival, Request: r},
			&Event{Time: r.DepartureTime, Type: Departure, Request: r})
	}
	heap.Init(q)
	return &timelineFeed{queue: q}, nil
}

func (f *timelineFeed) Next() (*Event, bool) {
	if f.queue.Len() == 0 {
		return nil, false
	}
	return heap.Pop(f.queue).(*Event), true
}

// NewTraceFeed replays the requests of a YAML trace file.
func NewTraceFeed(traceFile string) (EventFeed, error) {
	trace, err := LoadTrace(traceFile)
	if err != nil {
		return nil, err
	}
	klog.Infof("Loaded %v requests from trace file %v", len(trace.Requests), traceFile)
	feed, err := NewTimelineFeed(trace.Requests)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid trace file %v", traceFile)
	}
	return feed, nil
}

func LoadTrace(traceFile string) (*api.TraceSpec, error) {
	b, err := ioutil.ReadFile(traceFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read trace file %v", traceFile)
	}
	trace := &api.TraceSpec{}
	if err := yaml.Unmarshal(b, trace); err != nil {
		return nil, errors.Wrapf(err, "failed to decode trace file %v", traceFile)
	}
	return trace, nil
}

// GenerateRequests draws the requests of a Poisson arrival process: exponential
// inter-arrival and holding times, VM numbers uniform in the configured range, and
// bandwidths uniform among the configured choices. The same spec always yields the
// same requests.
func GenerateRequests(s *api.SimulationSpec) []api.RequestSpec {
	src := rand.NewSource(uint64(s.RandomSeed))
	rnd := rand.New(src)
	interArrival := distuv.Exponential{Rate: s.ArrivalRate, Src: src}
	holding := distuv.Exponential{Rate: 1 / s.MeanHoldingTime, Src: src}

	requests := make([]api.RequestSpec, 0, *s.RequestNumber)
	now := 0.0
	for i := int32(0); i < *s.RequestNumber; i++ {
		now += interArrival.Rand()
		requests = append(requests, api.RequestSpec{
			ID:            api.RequestID(i),
			VMNumber:      s.MinVMNumber + int32(rnd.Intn(int(s.MaxVMNumber-s.MinVMNumber+1))),
			Bandwidth:     s.BandwidthChoices[rnd.Intn(len(s.BandwidthChoices))],
			ArrivalTime:   now,
			DepartureTime: now + holding.Rand(),
		})
	}
	return requests
}

// NewPoissonGenerator replays the requests drawn by GenerateRequests.
func NewPoissonGenerator(s *api.SimulationSpec) EventFeed {
	feed, err := NewTimelineFeed(GenerateRequests(s))
	if err != nil {
		panic(errors.Wrapf(err, "Assert Failure: generated an invalid request"))
	}
	return feed
}

// NewEventFeed selects the trace file feed if the config names one, otherwise the
// Poisson generator.
func NewEventFeed(s *api.SimulationSpec) (EventFeed, error) {
	if s.TraceFile != "" {
		return NewTraceFeed(s.TraceFile)
	}
	klog.Infof("Generating %v requests: arrival rate %v, mean holding time %v, "+
		"VM number in [%v, %v], bandwidth in %v",
		*s.RequestNumber, s.ArrivalRate, s.MeanHoldingTime,
		s.MinVMNumber, s.MaxVMNumber, s.BandwidthChoices)
	return NewPoissonGenerator(s), nil
}
