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

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/microsoft/hivedbackup/pkg/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"k8s.io/klog"
)

const (
	EnvPrefix = "HIVEDBACKUP"

	// Highest fault domain level that backups can protect against: a core failure
	// disconnects every server, so it is never a fault domain.
	MaxFailureDomainLevel = 2
)

type Config struct {
	Topology   *TopologySpec   `yaml:"topology"`
	Admission  *AdmissionSpec  `yaml:"admission"`
	Simulation *SimulationSpec `yaml:"simulation"`
}

// LoadRawConfig reads the config file through viper, so that any field can be
// overridden by an environment variable, e.g. HIVEDBACKUP_ADMISSION_COLLOCATION=false.
func LoadRawConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %v", configPath)
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config file %v", configPath)
	}
	return c, nil
}

// LoadConfig reads, defaults and validates the config file.
func LoadConfig(configPath string) (*Config, error) {
	c, err := LoadRawConfig(configPath)
	if err != nil {
		return nil, err
	}
	defaultConfig(c)
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %v", configPath)
	}
	return c, nil
}

func InitRawConfig(configPath *string) *Config {
	c, err := LoadRawConfig(*configPath)
	if err != nil {
		panic(err)
	}
	return c
}

// NewConfigFromYaml parses an in-memory config, mainly for tests.
func NewConfigFromYaml(configYaml string) *Config {
	c := &Config{}
	common.FromYaml(configYaml, c)
	return NewConfig(c)
}

func NewConfig(rawConfig *Config) *Config {
	c := rawConfig
	defaultConfig(c)
	if err := c.Validate(); err != nil {
		panic(fmt.Errorf("Invalid config: %v", err))
	}
	klog.V(4).Infof("Effective config:\n%v", common.ToYaml(c))
	return c
}

func defaultConfig(c *Config) {
	if c.Topology == nil {
		c.Topology = &TopologySpec{}
	}
	if c.Admission == nil {
		c.Admission = &AdmissionSpec{}
	}
	if c.Simulation == nil {
		c.Simulation = &SimulationSpec{}
	}

	a := c.Admission
	if a.Collocation == nil {
		a.Collocation = common.PtrBool(true)
	}
	if a.BandwidthSharing == nil {
		a.BandwidthSharing = common.PtrBool(true)
	}
	if a.FailureDomainLevel == nil {
		a.FailureDomainLevel = common.PtrInt32(0)
	}
	if a.SolverRetries == nil {
		a.SolverRetries = common.PtrInt32(0)
	}
	if a.RandomSeed == nil {
		a.RandomSeed = common.PtrInt64(1)
	}

	s := c.Simulation
	if s.RequestNumber == nil {
		s.RequestNumber = common.PtrInt32(100)
	}
	if s.ArrivalRate == 0 {
		s.ArrivalRate = 1
	}
	if s.MeanHoldingTime == 0 {
		s.MeanHoldingTime = 50
	}
	if s.MinVMNumber == 0 {
		s.MinVMNumber = 2
	}
	if s.MaxVMNumber == 0 {
		s.MaxVMNumber = s.MinVMNumber
	}
	if len(s.BandwidthChoices) == 0 {
		s.BandwidthChoices = []float64{100}
	}
	if s.RandomSeed == 0 {
		s.RandomSeed = 1
	}
}

// Validate collects all the problems of a defaulted config instead of stopping at
// the first one.
func (c *Config) Validate() error {
	var result *multierror.Error
	t := c.Topology
	for name, n := range map[string]int32{
		"topology.aggsPerCore":   t.AggsPerCore,
		"topology.torsPerAgg":    t.TorsPerAgg,
		"topology.serversPerTor": t.ServersPerTor,
		"topology.serverVMSlots": t.ServerVMSlots,
	} {
		if n <= 0 {
			result = multierror.Append(result, fmt.Errorf("%v must be positive, got %v", name, n))
		}
	}
	for name, capacity := range map[string]float64{
		"topology.serverLinkCapacity": t.ServerLinkCapacity,
		"topology.torLinkCapacity":    t.TorLinkCapacity,
		"topology.aggLinkCapacity":    t.AggLinkCapacity,
	} {
		if capacity <= 0 {
			result = multierror.Append(result, fmt.Errorf("%v must be positive, got %v", name, capacity))
		}
	}

	a := c.Admission
	if l := *a.FailureDomainLevel; l < 0 || l > MaxFailureDomainLevel {
		result = multierror.Append(result, fmt.Errorf(
			"admission.failureDomainLevel must be within [0, %v], got %v", MaxFailureDomainLevel, l))
	}
	if *a.SolverRetries < 0 {
		result = multierror.Append(result, fmt.Errorf(
			"admission.solverRetries must be non-negative, got %v", *a.SolverRetries))
	}

	s := c.Simulation
	if *s.RequestNumber <= 0 {
		result = multierror.Append(result, fmt.Errorf(
			"simulation.requestNumber must be positive, got %v", *s.RequestNumber))
	}
	if s.MinVMNumber <= 0 || s.MaxVMNumber < s.MinVMNumber {
		result = multierror.Append(result, fmt.Errorf(
			"simulation VM number range [%v, %v] is invalid", s.MinVMNumber, s.MaxVMNumber))
	}
	if s.ArrivalRate <= 0 || s.MeanHoldingTime <= 0 {
		result = multierror.Append(result, fmt.Errorf(
			"simulation.arrivalRate and simulation.meanHoldingTime must be positive"))
	}
	for _, b := range s.BandwidthChoices {
		if b <= 0 {
			result = multierror.Append(result, fmt.Errorf(
				"simulation.bandwidthChoices must be positive, got %v", b))
		}
	}
	return result.ErrorOrNil()
}
