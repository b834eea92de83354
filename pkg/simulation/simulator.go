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
	"fmt"

	"github.com/microsoft/hivedbackup/pkg/algorithm"
	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/internal"
	"github.com/microsoft/hivedbackup/pkg/metrics"
	"github.com/pkg/errors"
	"k8s.io/klog"
)

// Simulator drives an admission controller with the events of a feed, one event at
// a time, each run to completion.
type Simulator struct {
	controller      *algorithm.AdmissionController
	feed            EventFeed
	checkInvariants bool

	// request ids in arrival order
	arrived []api.RequestID
	// sum over events of the total reserved backup resources, for time-free means
	backupBandwidthSum float64
	backupVMNumSum     float64
	eventNum           int32
	// sums over admitted requests of their own backup reservations at admission
	admittedBandwidthSum float64
	admittedVMNumSum     int32
	summary              *Summary
}

// Summary reports the outcome of a run.
type Summary struct {
	RequestNumber   int32                         `json:"requestNumber" yaml:"requestNumber"`
	AdmittedNumber  int32                         `json:"admittedNumber" yaml:"admittedNumber"`
	RejectedNumber  int32                         `json:"rejectedNumber" yaml:"rejectedNumber"`
	Rejections      map[api.RejectionReason]int32 `json:"rejections" yaml:"rejections"`
	AcceptanceRatio float64                       `json:"acceptanceRatio" yaml:"acceptanceRatio"`
	// Means over admitted requests of the backup resources each one reserved
	MeanReservedBackupBandwidth float64 `json:"meanReservedBackupBandwidth" yaml:"meanReservedBackupBandwidth"`
	MeanReservedBackupVMNumber  float64 `json:"meanReservedBackupVMNumber" yaml:"meanReservedBackupVMNumber"`
	// Means over events of the backup resources reserved in the whole topology
	MeanTotalBackupBandwidth float64 `json:"meanTotalBackupBandwidth" yaml:"meanTotalBackupBandwidth"`
	MeanTotalBackupVMNumber  float64 `json:"meanTotalBackupVMNumber" yaml:"meanTotalBackupVMNumber"`
	PeakTotalBackupBandwidth float64 `json:"peakTotalBackupBandwidth" yaml:"peakTotalBackupBandwidth"`
	PeakTotalBackupVMNumber  int32   `json:"peakTotalBackupVMNumber" yaml:"peakTotalBackupVMNumber"`

	Requests []api.RequestStatus `json:"requests,omitempty" yaml:"requests,omitempty"`
}

func NewSimulator(
	controller *algorithm.AdmissionController, feed EventFeed, checkInvariants bool) *Simulator {
	return &Simulator{
		controller:      controller,
		feed:            feed,
		checkInvariants: checkInvariants,
		summary: &Summary{
			Rejections: map[api.RejectionReason]int32{},
		},
	}
}

// NewSimulatorFromConfig builds the controller, with the reference placer and solver,
// and the event feed named by the config.
func NewSimulatorFromConfig(config *api.Config, recorder *metrics.Recorder) (*Simulator, error) {
	feed, err := NewEventFeed(config.Simulation)
	if err != nil {
		return nil, err
	}
	c := algorithm.NewAdmissionController(config, nil, nil, recorder)
	return NewSimulator(c, feed, config.Simulation.CheckInvariants), nil
}

func (s *Simulator) GetController() *algorithm.AdmissionController {
	return s.controller
}

// Run processes all the events of the feed. A defect found while processing an event,
// or an invariant violated after it, stops the run with an error.
func (s *Simulator) Run() (summary *Summary, err error) {
	defer internal.RecoverAsError("Simulation: ", &err)

	klog.Infof("Simulation started")
	for {
		e, ok := s.feed.Next()
		if !ok {
			break
		}
		s.handleEvent(e)
		if s.checkInvariants {
			if err := s.controller.CheckInvariants(); err != nil {
				return nil, errors.Wrapf(err, "invariants violated after %v of %v at %v",
					e.Type, internal.Key(e.Request.ID), e.Time)
			}
		}
		s.observe()
	}
	s.finishSummary()
	klog.Infof("Simulation finished: %v requests, %v admitted, acceptance ratio %.4f",
		s.summary.RequestNumber, s.summary.AdmittedNumber, s.summary.AcceptanceRatio)
	return s.summary, nil
}

func (s *Simulator) handleEvent(e *Event) {
	logPfx := fmt.Sprintf("[%v]: %v at %v: ", internal.Key(e.Request.ID), e.Type, e.Time)
	defer internal.HandleEventPanic(logPfx, false)

	switch e.Type {
	case Arrival:
		r := algorithm.NewRequestFromSpec(e.Request)
		result := s.controller.Arrive(r)
		s.arrived = append(s.arrived, r.GetID())
		s.summary.RequestNumber++
		if result.Admitted {
			s.summary.AdmittedNumber++
			s.admittedBandwidthSum += r.GetReservedBackupBandwidth()
			s.admittedVMNumSum += r.GetReservedBackupVMNum()
		} else {
			s.summary.RejectedNumber++
			s.summary.Rejections[result.RejectionReason]++
		}
	case Departure:
		s.controller.Depart(e.Request.ID)
	default:
		panic(fmt.Sprintf("Assert Failure: unknown event type %v", e.Type))
	}
}

func (s *Simulator) observe() {
	bw := s.controller.GetTotalReservedBackupBandwidth()
	vms := s.controller.GetTotalReservedBackupVMNum()
	s.eventNum++
	s.backupBandwidthSum += bw
	s.backupVMNumSum += float64(vms)
	if bw > s.summary.PeakTotalBackupBandwidth {
		s.summary.PeakTotalBackupBandwidth = bw
	}
	if vms > s.summary.PeakTotalBackupVMNumber {
		s.summary.PeakTotalBackupVMNumber = vms
	}
}

func (s *Simulator) finishSummary() {
	sum := s.summary
	if sum.RequestNumber > 0 {
		sum.AcceptanceRatio = float64(sum.AdmittedNumber) / float64(sum.RequestNumber)
	}
	if s.eventNum > 0 {
		sum.MeanTotalBackupBandwidth = s.backupBandwidthSum / float64(s.eventNum)
		sum.MeanTotalBackupVMNumber = s.backupVMNumSum / float64(s.eventNum)
	}
	if sum.AdmittedNumber > 0 {
		sum.MeanReservedBackupBandwidth = s.admittedBandwidthSum / float64(sum.AdmittedNumber)
		sum.MeanReservedBackupVMNumber = float64(s.admittedVMNumSum) / float64(sum.AdmittedNumber)
	}
	sum.Requests = make([]api.RequestStatus, 0, len(s.arrived))
	for _, id := range s.arrived {
		sum.Requests = append(sum.Requests, *s.controller.GetRequestStatus(id))
	}
}
