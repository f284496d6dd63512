//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/results"
	"github.com/daos-stack/rift/lib/scenario"
	"github.com/daos-stack/rift/lib/telemetry"
)

type runCmd struct {
	logCmd
	optsCmd
	Args struct {
		Scenario string `positional-arg-name:"<scenario.yml>" required:"1"`
	} `positional-args:"yes"`
}

// simBindings wires the runner to the in-memory simulator, the
// default backend for dry runs.
func (cmd *runCmd) simBindings() *scenario.Bindings {
	sim := cluster.NewSim(cmd.log, nil)
	return &scenario.Bindings{
		Sys:     sim,
		Pool:    sim,
		Storage: sim,
		Bench:   sim.Bench(),
		NewContainer: func(poolID string) cluster.Container {
			return sim.NewContainer(poolID)
		},
		NewMount: func(cont cluster.Container) cluster.Mounter {
			return sim.NewMount(cont.ID())
		},
	}
}

func (cmd *runCmd) Execute(_ []string) error {
	cfg, err := scenario.Load(cmd.Args.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := scenario.NewRunner(cmd.log, cmd.simBindings())

	if cmd.opts.DBPath != "" {
		store, err := results.Open(cmd.log, cmd.opts.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Store = store
	}

	if cmd.opts.TelemetryPort > 0 {
		runner.Metrics = telemetry.NewMetrics()
		telemetry.StartExporter(ctx, cmd.log, runner.Metrics, cmd.opts.TelemetryPort)
	}

	entry, err := runner.Run(ctx, cfg)
	if err != nil {
		return err
	}
	if !entry.Passed {
		return errors.Errorf("scenario %s failed with %d failure(s)",
			entry.Scenario, len(entry.Failures))
	}
	return nil
}
