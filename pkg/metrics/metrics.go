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

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog"
)

const (
	subsystem = api.ComponentName

	ResultAdmitted = "Admitted"
)

// Recorder exposes the admission outcomes and the reserved resources. A nil Recorder
// records nothing, so that the engine can run without metrics.
type Recorder struct {
	requests                *prometheus.CounterVec
	retries                 *prometheus.CounterVec
	solverErrors            prometheus.Counter
	reservedBackupBandwidth prometheus.Gauge
	reservedBackupVMs       prometheus.Gauge
	activeRequests          prometheus.Gauge
}

// NewRecorder creates the metrics and registers them if reg is not nil.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Processed request arrivals per result: Admitted or the rejection reason",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "admission_states_total",
			Help:      "Admission states visited, per state",
		}, []string{"state"}),
		solverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "solver_errors_total",
			Help:      "Bandwidth mapping solver calls that returned an error",
		}),
		reservedBackupBandwidth: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "reserved_backup_bandwidth",
			Help:      "Backup bandwidth reserved on all links, after sharing",
		}),
		reservedBackupVMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "reserved_backup_vms",
			Help:      "Backup VM slots reserved on all servers",
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "active_requests",
			Help:      "Admitted requests not departed yet",
		}),
	}
	if reg != nil {
		klog.V(4).Infof("Registering metrics")
		reg.MustRegister(
			r.requests,
			r.retries,
			r.solverErrors,
			r.reservedBackupBandwidth,
			r.reservedBackupVMs,
			r.activeRequests,
		)
	}
	return r
}

// ObserveArrival records the outcome of a request arrival.
func (r *Recorder) ObserveArrival(admitted bool, reason api.RejectionReason) {
	if r == nil {
		return
	}
	if admitted {
		r.requests.WithLabelValues(ResultAdmitted).Inc()
	} else {
		r.requests.WithLabelValues(string(reason)).Inc()
	}
}

func (r *Recorder) ObserveState(state string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(state).Inc()
}

func (r *Recorder) ObserveSolverError() {
	if r == nil {
		return
	}
	r.solverErrors.Inc()
}

func (r *Recorder) SetReserved(backupBandwidth float64, backupVMs int32, activeRequests int) {
	if r == nil {
		return
	}
	r.reservedBackupBandwidth.Set(backupBandwidth)
	r.reservedBackupVMs.Set(float64(backupVMs))
	r.activeRequests.Set(float64(activeRequests))
}

// NewRegistry returns a registry with the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the metrics of the gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
