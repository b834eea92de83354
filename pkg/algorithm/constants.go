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

const (
	// node levels in the tree, servers are the leaves
	ServerLevel    NodeLevel = 0
	TorLevel       NodeLevel = 1
	AggregateLevel NodeLevel = 2
	CoreLevel      NodeLevel = 3

	lowestLevel  = ServerLevel
	highestLevel = CoreLevel

	// NoNode is the parent of the root, and the result of a search that found nothing.
	NoNode NodeID = -1

	// states of one admission attempt

	// Looking for servers for the backup VMs of a request within the current scope.
	Searching RetryState = "Searching"
	// Backups are tentatively placed; asking the bandwidth mapping solver to confirm them.
	Mapping RetryState = "Mapping"
	// The solver confirmed the placement and the reservations are permanent.
	Admitted RetryState = "Admitted"
	// The solver rejected the placement; backups are released and the search continues
	// from the parent of the scope where they were placed.
	RetryWider RetryState = "RetryWider"
	// The solver rejected the placement at the top of the tree in collocation mode;
	// backups are released and the search restarts from the request's own subtree
	// without collocation.
	RetryNoCollocate RetryState = "RetryNoCollocate"
	// All scopes and modes are exhausted. The request holds no resource any more.
	Rejected RetryState = "Rejected"

	// statuses of a bandwidth mapping solver result
	MappingFeasible   MappingStatus = "Feasible"
	MappingInfeasible MappingStatus = "Infeasible"
)
