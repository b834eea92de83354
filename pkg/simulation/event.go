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
	"github.com/microsoft/hivedbackup/pkg/api"
)

type EventType string

const (
	Arrival   EventType = "Arrival"
	Departure EventType = "Departure"
)

type Event struct {
	Time    float64
	Type    EventType
	Request *api.RequestSpec
}

// rank orders the events happening at the same time: departures free resources
// before new arrivals claim them, except that a request always arrives before it departs.
func (e *Event) rank() int {
	if e.Type == Arrival {
		return 1
	}
	if e.Request.DepartureTime <= e.Request.ArrivalTime {
		return 2
	}
	return 0
}

// eventQueue is a min-heap of events ordered by time, then rank, then request id.
type eventQueue []*Event

func (q eventQueue) Len() int {
	return len(q)
}

func (q eventQueue) Less(i, j int) bool {
	if q[i].Time != q[j].Time {
		return q[i].Time < q[j].Time
	}
	if ri, rj := q[i].rank(), q[j].rank(); ri != rj {
		return ri < rj
	}
	return q[i].Request.ID < q[j].Request.ID
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *eventQueue) Push(x interface{}) {
	*q = append(*q, x.(*Event))
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
