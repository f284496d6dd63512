//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package scenario

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/inject"
	"github.com/daos-stack/rift/lib/loadgen"
	"github.com/daos-stack/rift/lib/ranklist"
)

// Kind selects the scenario flow.
type Kind string

const (
	// KindCampaign runs load concurrently with fault actions.
	KindCampaign Kind = "campaign"
	// KindRebuild runs a full rebuild lifecycle.
	KindRebuild Kind = "rebuild"
	// KindReplay restarts all engines and verifies persisted state.
	KindReplay Kind = "replay"
)

// Duration wraps time.Duration for YAML parsing of values like "30s".
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	td, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(td)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Size wraps a byte quantity for YAML parsing of values like "16 GiB".
type Size uint64

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	bytes, err := humanize.ParseBytes(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", raw)
	}
	*s = Size(bytes)
	return nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

type (
	// PoolConfig sizes the pool used by a scenario. When SizePercent
	// is set the pool is sized from that share of available storage
	// and the explicit sizes are ignored.
	PoolConfig struct {
		Label       string `yaml:"label"`
		ScmSize     Size   `yaml:"scm_size"`
		NvmeSize    Size   `yaml:"nvme_size"`
		SizePercent int    `yaml:"size_percent"`
	}

	// WorkloadConfig configures the benchmark workload.
	WorkloadConfig struct {
		Mode          string `yaml:"mode"`
		Media         string `yaml:"media"`
		ObjectClass   string `yaml:"object_class"`
		FillPercent   int    `yaml:"fill_percent"`
		BlockSize     Size   `yaml:"block_size"`
		TransferSize  Size   `yaml:"transfer_size"`
		Processes     int    `yaml:"processes"`
		FailOnWarning bool   `yaml:"fail_on_warning"`
		LogFile       string `yaml:"log_file"`
	}

	// ActionConfig configures one fault action.
	ActionConfig struct {
		Kind            string   `yaml:"kind"`
		Rank            uint32   `yaml:"rank"`
		Force           bool     `yaml:"force"`
		Targets         []uint32 `yaml:"targets"`
		Host            string   `yaml:"host"`
		Device          string   `yaml:"device"`
		ExpectRejection bool     `yaml:"expect_rejection"`
	}

	// FaultsConfig configures failure injection for a scenario. For
	// rebuild scenarios, Victims or VictimCount selects the ranks to
	// stop; with VictimCount the ranks are chosen away from the pool
	// service leader.
	FaultsConfig struct {
		Delay       Duration        `yaml:"delay"`
		Actions     []*ActionConfig `yaml:"actions"`
		Victims     []uint32        `yaml:"victims"`
		VictimCount int             `yaml:"victim_count"`
	}

	// PollConfig configures convergence polling cadences.
	PollConfig struct {
		Interval     Duration `yaml:"interval"`
		StartTimeout Duration `yaml:"start_timeout"`
		EndTimeout   Duration `yaml:"end_timeout"`
		Attempts     uint     `yaml:"attempts"`
	}

	// SystemConfig describes the topology of the system under test.
	SystemConfig struct {
		TargetsPerEngine uint32 `yaml:"targets_per_engine"`
	}

	// Config is a complete scenario description.
	Config struct {
		Name     string         `yaml:"name"`
		Kind     Kind           `yaml:"kind"`
		System   SystemConfig   `yaml:"system"`
		Pool     PoolConfig     `yaml:"pool"`
		Workload WorkloadConfig `yaml:"workload"`
		Faults   FaultsConfig   `yaml:"faults"`
		Poll     PollConfig     `yaml:"poll"`
	}
)

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Kind: KindCampaign,
		System: SystemConfig{
			TargetsPerEngine: 8,
		},
		Pool: PoolConfig{
			Label:    "rift-pool",
			ScmSize:  Size(16 << 30),
			NvmeSize: Size(256 << 30),
		},
		Workload: WorkloadConfig{
			Mode:          "auto-write",
			Media:         "nvme",
			ObjectClass:   "RP_2GX",
			FillPercent:   75,
			Processes:     1,
			FailOnWarning: true,
		},
		Faults: FaultsConfig{
			Delay:       Duration(30 * time.Second),
			VictimCount: 1,
		},
		Poll: PollConfig{
			Interval:     Duration(time.Second),
			StartTimeout: Duration(2 * time.Minute),
			EndTimeout:   Duration(10 * time.Minute),
			Attempts:     30,
		},
	}
}

// Load reads a scenario config from the given file, applies defaults
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario config %s", path)
	}

	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse scenario config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for errors a run would hit later.
func (cfg *Config) Validate() error {
	if cfg.Name == "" {
		return FaultBadConfig("scenario has no name")
	}

	switch cfg.Kind {
	case KindCampaign, KindRebuild, KindReplay:
	default:
		return FaultBadConfig("unknown scenario kind " + string(cfg.Kind))
	}

	if _, err := loadgen.ParseMode(cfg.Workload.Mode); err != nil {
		return FaultBadWorkloadMode(cfg.Workload.Mode)
	}
	if _, err := cluster.ParseStorageMedia(cfg.Workload.Media); err != nil {
		return FaultBadConfig(err.Error())
	}
	if _, err := loadgen.ParseObjectClass(cfg.Workload.ObjectClass); err != nil {
		return FaultBadStorageClass(cfg.Workload.ObjectClass)
	}

	if cfg.Pool.SizePercent < 0 || cfg.Pool.SizePercent > 100 {
		return FaultBadConfig("pool size_percent must be in [0, 100]")
	}

	for _, ac := range cfg.Faults.Actions {
		if _, err := inject.ParseKind(ac.Kind); err != nil {
			return FaultBadConfig(err.Error())
		}
	}

	if cfg.Kind == KindRebuild && len(cfg.Faults.Victims) == 0 && cfg.Faults.VictimCount < 1 {
		return FaultBadConfig("rebuild scenario needs victims or victim_count")
	}

	return nil
}

// CreateReq builds a pool create request, sizing from available
// storage when a percentage is configured.
func (pc *PoolConfig) CreateReq(scmAvail, nvmeAvail uint64) *cluster.PoolCreateReq {
	req := &cluster.PoolCreateReq{
		Label:     pc.Label,
		ScmBytes:  uint64(pc.ScmSize),
		NvmeBytes: uint64(pc.NvmeSize),
	}
	if pc.SizePercent > 0 {
		req.ScmBytes = scmAvail / 100 * uint64(pc.SizePercent)
		req.NvmeBytes = nvmeAvail / 100 * uint64(pc.SizePercent)
	}
	return req
}

// ToWorkload builds the loadgen workload described by the config.
func (wc *WorkloadConfig) ToWorkload(createContainer bool) (*loadgen.Workload, error) {
	mode, err := loadgen.ParseMode(wc.Mode)
	if err != nil {
		return nil, FaultBadWorkloadMode(wc.Mode)
	}
	media, err := cluster.ParseStorageMedia(wc.Media)
	if err != nil {
		return nil, FaultBadConfig(err.Error())
	}

	return &loadgen.Workload{
		Mode:            mode,
		Media:           media,
		ObjectClass:     wc.ObjectClass,
		FillPercent:     wc.FillPercent,
		BlockSize:       uint64(wc.BlockSize),
		TransferSize:    uint64(wc.TransferSize),
		Processes:       wc.Processes,
		CreateContainer: createContainer,
		FailOnWarning:   wc.FailOnWarning,
		LogFile:         wc.LogFile,
	}, nil
}

// ToAction builds the fault action described by the config. The pool
// identifier is filled in for target exclusions.
func (ac *ActionConfig) ToAction(poolID string) (*inject.Action, error) {
	kind, err := inject.ParseKind(ac.Kind)
	if err != nil {
		return nil, FaultBadConfig(err.Error())
	}
	return &inject.Action{
		Kind:            kind,
		Rank:            ranklist.Rank(ac.Rank),
		Force:           ac.Force,
		PoolID:          poolID,
		Targets:         ac.Targets,
		Host:            ac.Host,
		DeviceUUID:      ac.Device,
		ExpectRejection: ac.ExpectRejection,
	}, nil
}
