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

package internal

import (
	"fmt"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/pkg/errors"
	"k8s.io/klog"
)

func Key(id api.RequestID) string {
	return fmt.Sprintf("request-%v", id)
}

// IsValidRequest checks a request before it reaches the engine: the engine treats
// malformed requests as programming defects, while they can legitimately come from
// a trace file.
func IsValidRequest(r *api.RequestSpec) error {
	if r.VMNumber <= 0 {
		return errors.Errorf("%v: VM number must be positive, got %v", Key(r.ID), r.VMNumber)
	}
	if r.Bandwidth < 0 {
		return errors.Errorf("%v: bandwidth must be non-negative, got %v", Key(r.ID), r.Bandwidth)
	}
	if r.DepartureTime < r.ArrivalTime {
		return errors.Errorf("%v: departure time %v is before arrival time %v",
			Key(r.ID), r.DepartureTime, r.ArrivalTime)
	}
	return nil
}

// Wrap and Rethrow Panic
func HandleEventPanic(logPfx string, logOnSucceeded bool) {
	if r := recover(); r != nil {
		klog.Errorf(logPfx+"Failed: %v", common.GetPanicDetails(r))
		panic(fmt.Errorf(logPfx+"Failed: %v", r))
	} else if logOnSucceeded {
		klog.Infof(logPfx + "Succeeded")
	}
}

// Log and Recover Panic into the error pointed by err, so that a whole run can
// report a defect to its caller instead of crashing the process.
func RecoverAsError(logPfx string, err *error) {
	if r := recover(); r != nil {
		klog.Warningf(logPfx+"Recovered: %v", common.GetPanicDetails(r))
		*err = errors.Errorf(logPfx+"Failed: %v", r)
	}
}
