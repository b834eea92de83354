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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveArrival(true, api.RejectionNone)
	r.ObserveArrival(true, api.RejectionNone)
	r.ObserveArrival(false, api.RejectionBackupEmbedding)
	r.ObserveState("Searching")
	r.SetReserved(250, 6, 2)

	expected := `
# HELP hivedbackup_requests_total Processed request arrivals per result: Admitted or the rejection reason
# TYPE hivedbackup_requests_total counter
hivedbackup_requests_total{result="Admitted"} 2
hivedbackup_requests_total{result="BackupEmbedding"} 1
# HELP hivedbackup_reserved_backup_bandwidth Backup bandwidth reserved on all links, after sharing
# TYPE hivedbackup_reserved_backup_bandwidth gauge
hivedbackup_reserved_backup_bandwidth 250
# HELP hivedbackup_reserved_backup_vms Backup VM slots reserved on all servers
# TYPE hivedbackup_reserved_backup_vms gauge
hivedbackup_reserved_backup_vms 6
# HELP hivedbackup_active_requests Admitted requests not departed yet
# TYPE hivedbackup_active_requests gauge
hivedbackup_active_requests 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hivedbackup_requests_total",
		"hivedbackup_reserved_backup_bandwidth",
		"hivedbackup_reserved_backup_vms",
		"hivedbackup_active_requests"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("Searching")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveArrival(false, api.RejectionPrimaryEmbedding)
		r.ObserveState("Mapping")
		r.ObserveSolverError()
		r.SetReserved(1, 1, 1)
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	r := NewRecorder(reg)
	r.ObserveSolverError()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hivedbackup_solver_errors_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
