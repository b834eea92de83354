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

package main

import (
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/microsoft/hivedbackup/pkg/api"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/microsoft/hivedbackup/pkg/metrics"
	"github.com/microsoft/hivedbackup/pkg/simulation"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/klog"
)

type simulateCmd struct {
	configPath  string
	metricsAddr string
	outputPath  string
	format      string
}

func (c *simulateCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay generated or traced requests through the admission controller",
	}
	addConfigFlag(cmd.Flags(), &c.configPath)
	cmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "",
		"address to serve Prometheus metrics on, e.g. :9090, disabled if empty")
	cmd.Flags().StringVar(&c.outputPath, "output", "",
		"file to write the run summary to, stdout if empty")
	cmd.Flags().StringVar(&c.format, "format", "yaml", "run summary format, yaml or json")
	return cmd
}

func (c *simulateCmd) run(cmd *cobra.Command, args []string) error {
	if c.format != "yaml" && c.format != "json" {
		return errors.Errorf("unknown summary format %q, expected yaml or json", c.format)
	}
	config, err := api.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	klog.Infof("Effective config:\n%v", common.ToYaml(config))

	var recorder *metrics.Recorder
	if c.metricsAddr != "" {
		registry := metrics.NewRegistry()
		recorder = metrics.NewRecorder(registry)
		go serveMetrics(c.metricsAddr, registry)
	}

	sim, err := simulation.NewSimulatorFromConfig(config, recorder)
	if err != nil {
		return err
	}
	summary, err := sim.Run()
	if err != nil {
		return err
	}

	out := common.ToYaml(summary)
	if c.format == "json" {
		out = common.ToJson(summary) + "\n"
	}
	if c.outputPath == "" {
		fmt.Print(out)
		return nil
	}
	if err := ioutil.WriteFile(c.outputPath, []byte(out), 0644); err != nil {
		return errors.Wrapf(err, "failed to write summary to %v", c.outputPath)
	}
	klog.Infof("Summary written to %v", c.outputPath)
	return nil
}

// serveMetrics blocks until the server stops. A failing metrics server is logged and
// never stops the run.
func serveMetrics(addr string, g prometheus.Gatherer) {
	defer common.HandleRoutinePanic("Metrics server: ")

	klog.Infof("Serving metrics on %v/metrics", addr)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.Errorf("Metrics server stopped: %v", err)
	}
}
