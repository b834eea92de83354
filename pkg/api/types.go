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

package api

///////////////////////////////////////////////////////////////////////////////////////
// General Types
///////////////////////////////////////////////////////////////////////////////////////
type (
	NodeAddress     string
	RequestID       int32
	RejectionReason string
	VMKind          string
)

const (
	ComponentName = "hivedbackup"

	// A request is either admitted (RejectionNone) or rejected for exactly one reason.
	RejectionNone RejectionReason = "None"
	// The primary placer could not find a subtree for the primary VMs.
	RejectionPrimaryEmbedding RejectionReason = "PrimaryEmbedding"
	// No subtree has enough spare VM slots or eligible non-hosting servers for the backups,
	// under either collocation mode.
	RejectionBackupEmbedding RejectionReason = "BackupEmbedding"
	// Backups could be placed, but the bandwidth mapping solver never confirmed
	// sufficient link bandwidth.
	RejectionBackupMappingBandwidth RejectionReason = "BackupMappingBandwidth"
	// The request was admitted by the solver, but the shared backup bandwidth of the
	// links it touches could not be committed.
	RejectionSharedBandwidth RejectionReason = "SharedBandwidth"

	PrimaryVM VMKind = "Primary"
	BackupVM  VMKind = "Backup"
	// AnyVM selects both kinds when releasing resources.
	AnyVM VMKind = ""
)

// Physical topology definition: a single-rooted tree of core -> aggregate -> TOR -> server.
type TopologySpec struct {
	AggsPerCore   int32 `yaml:"aggsPerCore"`
	TorsPerAgg    int32 `yaml:"torsPerAgg"`
	ServersPerTor int32 `yaml:"serversPerTor"`
	ServerVMSlots int32 `yaml:"serverVMSlots"`
	// Link capacities by the level of the lower endpoint
	ServerLinkCapacity float64 `yaml:"serverLinkCapacity"`
	TorLinkCapacity    float64 `yaml:"torLinkCapacity"`
	AggLinkCapacity    float64 `yaml:"aggLinkCapacity"`
}

type AdmissionSpec struct {
	// Try placing backups on servers already hosting primaries of the same request first.
	Collocation *bool `yaml:"collocation"`
	// Share backup bandwidth across requests whose failures cannot co-occur.
	BandwidthSharing *bool `yaml:"bandwidthSharing"`
	// Highest node level considered a fault domain: 0 for servers only,
	// 1 to also include TOR switches, 2 to also include aggregate switches.
	FailureDomainLevel *int32 `yaml:"failureDomainLevel"`
	// Extra attempts after the bandwidth mapping solver returns an error.
	SolverRetries *int32 `yaml:"solverRetries"`
	// Seed of the random source used when picking servers for backups.
	RandomSeed *int64 `yaml:"randomSeed"`
}

type SimulationSpec struct {
	RequestNumber    *int32    `yaml:"requestNumber"`
	ArrivalRate      float64   `yaml:"arrivalRate"`
	MeanHoldingTime  float64   `yaml:"meanHoldingTime"`
	MinVMNumber      int32     `yaml:"minVMNumber"`
	MaxVMNumber      int32     `yaml:"maxVMNumber"`
	BandwidthChoices []float64 `yaml:"bandwidthChoices"`
	RandomSeed       int64     `yaml:"randomSeed"`
	// Replay requests from a trace file instead of generating them.
	TraceFile string `yaml:"traceFile,omitempty"`
	// Check the ledger invariants after every event.
	CheckInvariants bool `yaml:"checkInvariants"`
}

// Trace file format: a list of requests, replayed in arrival order.
type RequestSpec struct {
	ID            RequestID `yaml:"id"`
	VMNumber      int32     `yaml:"vmNumber"`
	Bandwidth     float64   `yaml:"bandwidth"`
	ArrivalTime   float64   `yaml:"arrivalTime"`
	DepartureTime float64   `yaml:"departureTime"`
}

type TraceSpec struct {
	Requests []RequestSpec `yaml:"requests"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Status Types: read-only snapshots for reporting code
///////////////////////////////////////////////////////////////////////////////////////
type RequestStatus struct {
	ID                      RequestID             `json:"id" yaml:"id"`
	VMNumber                int32                 `json:"vmNumber" yaml:"vmNumber"`
	Bandwidth               float64               `json:"bandwidth" yaml:"bandwidth"`
	Admitted                bool                  `json:"admitted" yaml:"admitted"`
	RejectionReason         RejectionReason       `json:"rejectionReason" yaml:"rejectionReason"`
	Subtree                 NodeAddress           `json:"subtree,omitempty" yaml:"subtree,omitempty"`
	BackupNeeded            int32                 `json:"backupNeeded" yaml:"backupNeeded"`
	PrimaryPlacement        map[NodeAddress]int32 `json:"primaryPlacement,omitempty" yaml:"primaryPlacement,omitempty"` // server -> VM number
	BackupPlacement         map[NodeAddress]int32 `json:"backupPlacement,omitempty" yaml:"backupPlacement,omitempty"`   // server -> VM number
	ReservedBackupBandwidth float64               `json:"reservedBackupBandwidth" yaml:"reservedBackupBandwidth"`
	ReservedBackupVMNumber  int32                 `json:"reservedBackupVMNumber" yaml:"reservedBackupVMNumber"`
	ArrivalTime             float64               `json:"arrivalTime" yaml:"arrivalTime"`
	DepartureTime           float64               `json:"departureTime" yaml:"departureTime"`
}

type LinkStatus struct {
	// Address of the lower endpoint of the link
	Child            NodeAddress   `json:"child" yaml:"child"`
	Parent           NodeAddress   `json:"parent" yaml:"parent"`
	Capacity         float64       `json:"capacity" yaml:"capacity"`
	PrimaryBandwidth float64       `json:"primaryBandwidth" yaml:"primaryBandwidth"`
	BackupBandwidth  float64       `json:"backupBandwidth" yaml:"backupBandwidth"`
	SharingSets      [][]RequestID `json:"sharingSets,omitempty" yaml:"sharingSets,omitempty"`
}
