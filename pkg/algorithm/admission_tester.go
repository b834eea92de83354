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
	"io/ioutil"
	"reflect"
	"testing"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/microsoft/hivedbackup/pkg/internal"
)

type arriveResult struct {
	Admitted        bool                `yaml:"admitted"`
	RejectionReason api.RejectionReason `yaml:"rejectionReason"`
	// optional
	Scope                   api.NodeAddress `yaml:"scope"`
	Collocated              *bool           `yaml:"collocated"`
	BackupNeeded            *int32          `yaml:"backupNeeded"`
	ReservedBackupVMNumber  *int32          `yaml:"reservedBackupVMNumber"`
	ReservedBackupBandwidth *float64        `yaml:"reservedBackupBandwidth"`
	Trace                   []RetryState    `yaml:"trace"`
}

type reservedResult struct {
	Bandwidth float64 `yaml:"bandwidth"`
	VMNumber  int32   `yaml:"vmNumber"`
}

type step struct {
	Method     string                      `yaml:"method"`
	Paramaters map[interface{}]interface{} `yaml:"parameters"`
}

type stepList []step

type AdmissionTester interface {
	Arrive(request api.RequestSpec)
	Depart(id api.RequestID)

	AssertArriveResult(id api.RequestID, expectedResult arriveResult)
	AssertArrivePanic(id api.RequestID)
	AssertTotalReservedBackup(expectedResult reservedResult)
	AssertLinkBackupBandwidth(link string, bandwidth float64)
	AssertSurvivesAllFailures(id api.RequestID)
	AssertInvariants()
	ExecuteCaseFromYamlFile(filePath string)
}

type GenericAdmissionTester struct {
	c *AdmissionController
	t *testing.T
	// results of the arrivals which did not panic
	arriveResults map[api.RequestID]*ProtectionResult
	// arrivals which panicked
	panicRequests map[api.RequestID]bool
}

func NewAdmissionTester(t *testing.T, configFilePath string) *GenericAdmissionTester {
	sConfig := api.NewConfig(api.InitRawConfig(&configFilePath))
	return &GenericAdmissionTester{
		c:             NewAdmissionController(sConfig, nil, nil, nil),
		t:             t,
		arriveResults: map[api.RequestID]*ProtectionResult{},
		panicRequests: map[api.RequestID]bool{},
	}
}

func (tester *GenericAdmissionTester) Arrive(request api.RequestSpec) {
	t := tester.t
	defer func() {
		if err := recover(); err != nil {
			t.Logf("Panic detected for %v. Details: %v", internal.Key(request.ID), err)
			tester.panicRequests[request.ID] = true
		}
	}()
	tester.arriveResults[request.ID] = tester.c.Arrive(NewRequestFromSpec(&request))
}

func (tester *GenericAdmissionTester) Depart(id api.RequestID) {
	tester.c.Depart(id)
}

func (tester *GenericAdmissionTester) AssertArriveResult(id api.RequestID, expectedResult arriveResult) {
	t := tester.t
	result, ok := tester.arriveResults[id]
	if !ok {
		t.Errorf("AssertArriveResult failed for %v: Cannot find arrival result!", internal.Key(id))
		return
	}
	r := tester.c.GetRequest(id)
	failed := false
	check := func(name string, expected interface{}, actual interface{}) {
		if !reflect.DeepEqual(expected, actual) {
			t.Errorf("AssertArriveResult failed for %v: Expected %v is %v but got %v",
				internal.Key(id), name, expected, actual)
			failed = true
		}
	}
	check("admitted", expectedResult.Admitted, result.Admitted)
	check("rejection reason", expectedResult.RejectionReason, result.RejectionReason)
	check("request rejection reason", expectedResult.RejectionReason, r.GetRejectionReason())
	if expectedResult.Scope != "" {
		if result.Scope == NoNode {
			check("scope", expectedResult.Scope, api.NodeAddress(""))
		} else {
			check("scope", expectedResult.Scope, tester.c.GetTopology().GetNode(result.Scope).GetAddress())
		}
	}
	if expectedResult.Collocated != nil {
		check("collocation", *expectedResult.Collocated, result.Collocated)
	}
	if expectedResult.BackupNeeded != nil {
		check("backup needed", *expectedResult.BackupNeeded, r.GetBackupNeeded())
	}
	if expectedResult.ReservedBackupVMNumber != nil {
		check("reserved backup VM number", *expectedResult.ReservedBackupVMNumber, r.GetReservedBackupVMNum())
	}
	if expectedResult.ReservedBackupBandwidth != nil &&
		!common.FloatEqual(*expectedResult.ReservedBackupBandwidth, r.GetReservedBackupBandwidth()) {
		check("reserved backup bandwidth", *expectedResult.ReservedBackupBandwidth, r.GetReservedBackupBandwidth())
	}
	if len(expectedResult.Trace) > 0 {
		check("trace", expectedResult.Trace, result.Trace)
	}
	if !failed {
		t.Logf("AssertArriveResult ok for %v.", internal.Key(id))
	}
}

func (tester *GenericAdmissionTester) AssertArrivePanic(id api.RequestID) {
	t := tester.t
	if !tester.panicRequests[id] {
		t.Errorf("AssertArrivePanic failed for %v.", internal.Key(id))
	} else {
		t.Logf("AssertArrivePanic ok for %v.", internal.Key(id))
	}
}

func (tester *GenericAdmissionTester) AssertTotalReservedBackup(expectedResult reservedResult) {
	t := tester.t
	bw := tester.c.GetTotalReservedBackupBandwidth()
	vms := tester.c.GetTotalReservedBackupVMNum()
	if !common.FloatEqual(expectedResult.Bandwidth, bw) || expectedResult.VMNumber != vms {
		t.Errorf("AssertTotalReservedBackup failed: Expected %v bandwidth and %v VMs but got %v and %v",
			expectedResult.Bandwidth, expectedResult.VMNumber, bw, vms)
	} else {
		t.Logf("AssertTotalReservedBackup ok.")
	}
}

func (tester *GenericAdmissionTester) AssertLinkBackupBandwidth(link string, bandwidth float64) {
	t := tester.t
	for _, l := range tester.c.GetTopology().GetLinks() {
		if l.GetAddress() != link {
			continue
		}
		if !common.FloatEqual(bandwidth, l.GetBackupBandwidth()) {
			t.Errorf("AssertLinkBackupBandwidth failed for link %v: Expected %v but got %v",
				link, bandwidth, l.GetBackupBandwidth())
		} else {
			t.Logf("AssertLinkBackupBandwidth ok for link %v.", link)
		}
		return
	}
	t.Errorf("AssertLinkBackupBandwidth failed: Cannot find link %v!", link)
}

func (tester *GenericAdmissionTester) AssertSurvivesAllFailures(id api.RequestID) {
	t := tester.t
	c := tester.c
	r := c.GetRequest(id)
	for _, d := range c.GetFailureDomainPolicy().GetFailureDomains(c.GetTopology(), r) {
		if active := c.GetActiveVMsAfterFailure(id, d); int32(len(active)) != r.GetVMNum() {
			t.Errorf("AssertSurvivesAllFailures failed for %v: %v VMs active after failure of %v: %v",
				internal.Key(id), len(active), c.GetTopology().GetNode(d).GetAddress(), active)
			return
		}
	}
	t.Logf("AssertSurvivesAllFailures ok for %v.", internal.Key(id))
}

func (tester *GenericAdmissionTester) AssertInvariants() {
	t := tester.t
	if err := tester.c.CheckInvariants(); err != nil {
		t.Errorf("AssertInvariants failed: %v", err)
	} else {
		t.Logf("AssertInvariants ok.")
	}
}

func (tester *GenericAdmissionTester) ExecuteCaseFromYamlFile(filePath string) {
	yamlBytes, err := ioutil.ReadFile(filePath)
	if err != nil {
		panic(fmt.Errorf("Failed to read test case file: %v, %v", filePath, err))
	}
	steps := stepList{}
	common.FromYaml(string(yamlBytes), &steps)
	for _, step := range steps {
		if step.Method == "Arrive" {
			request := api.RequestSpec{}
			common.FromYaml(common.ToYaml(step.Paramaters["request"]), &request)
			tester.Arrive(request)
		} else if step.Method == "Depart" {
			var id = api.RequestID(step.Paramaters["id"].(int))
			tester.Depart(id)
		} else if step.Method == "AssertArriveResult" {
			var id = api.RequestID(step.Paramaters["id"].(int))
			expectedResult := arriveResult{}
			common.FromYaml(common.ToYaml(step.Paramaters["expectedResult"]), &expectedResult)
			tester.AssertArriveResult(id, expectedResult)
		} else if step.Method == "AssertArrivePanic" {
			var id = api.RequestID(step.Paramaters["id"].(int))
			tester.AssertArrivePanic(id)
		} else if step.Method == "AssertTotalReservedBackup" {
			expectedResult := reservedResult{}
			common.FromYaml(common.ToYaml(step.Paramaters["expectedResult"]), &expectedResult)
			tester.AssertTotalReservedBackup(expectedResult)
		} else if step.Method == "AssertLinkBackupBandwidth" {
			var link = step.Paramaters["link"].(string)
			var bandwidth float64
			common.FromYaml(common.ToYaml(step.Paramaters["bandwidth"]), &bandwidth)
			tester.AssertLinkBackupBandwidth(link, bandwidth)
		} else if step.Method == "AssertSurvivesAllFailures" {
			var id = api.RequestID(step.Paramaters["id"].(int))
			tester.AssertSurvivesAllFailures(id)
		} else if step.Method == "AssertInvariants" {
			tester.AssertInvariants()
		} else {
			panic(fmt.Errorf("The method %v is not implemented!", step.Method))
		}
	}
}
