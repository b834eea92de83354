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

package common

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"runtime/debug"

	"gopkg.in/yaml.v2"
	"k8s.io/klog"
)

// Tolerance used when comparing bandwidth amounts.
const Epsilon = 1e-6

func InitAll() {
	InitLogger()
}

// InitLogger registers the klog flags on the default flag set, so that they can be
// set through the command line (e.g., -v=4).
func InitLogger() {
	klog.InitFlags(flag.CommandLine)
}

func ToYaml(obj interface{}) string {
	yamlBytes, err := yaml.Marshal(obj)
	if err != nil {
		panic(fmt.Errorf("Failed to marshal Object %#v to YAML: %v", obj, err))
	}
	return string(yamlBytes)
}

func FromYaml(yamlStr string, objAddr interface{}) {
	err := yaml.Unmarshal([]byte(yamlStr), objAddr)
	if err != nil {
		panic(fmt.Errorf("Failed to unmarshal YAML %#v to Object: %v", yamlStr, err))
	}
}

func ToJson(obj interface{}) string {
	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		panic(fmt.Errorf("Failed to marshal Object %#v to JSON: %v", obj, err))
	}
	return string(jsonBytes)
}

func GetPanicDetails(e interface{}) string {
	return fmt.Sprintf("%v\n%v", e, string(debug.Stack()))
}

// Log and Swallow Panic of a background routine whose failure must not take the
// process down.
func HandleRoutinePanic(logPfx string) {
	if r := recover(); r != nil {
		klog.Errorf(logPfx+"Failed: %v", GetPanicDetails(r))
	}
}

func PtrBool(o bool) *bool {
	return &o
}

func PtrInt32(o int32) *int32 {
	return &o
}

func PtrInt64(o int64) *int64 {
	return &o
}

// FloatLE reports whether a <= b within Epsilon.
func FloatLE(a float64, b float64) bool {
	return a <= b+Epsilon
}

func FloatEqual(a float64, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}
