//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package scenario_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/common/test"
	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/lib/scenario"
	"github.com/daos-stack/rift/logging"
)

func simBindings(sim *cluster.Sim) *scenario.Bindings {
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

func fastPoll() scenario.PollConfig {
	return scenario.PollConfig{
		Interval:     scenario.Duration(time.Millisecond),
		StartTimeout: scenario.Duration(time.Second),
		EndTimeout:   scenario.Duration(time.Second),
		Attempts:     50,
	}
}

func simConfig() *cluster.SimConfig {
	cfg := cluster.DefaultSimConfig()
	cfg.RebuildTicks = 2
	cfg.BenchDuration = 10 * time.Millisecond
	return cfg
}

func TestScenario_RunCampaign(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	sim := cluster.NewSim(log, simConfig())
	runner := scenario.NewRunner(log, simBindings(sim))

	cfg := scenario.DefaultConfig()
	cfg.Name = "campaign-kill-one"
	cfg.Kind = scenario.KindCampaign
	cfg.Workload.FillPercent = 10
	cfg.Faults.Delay = scenario.Duration(2 * time.Millisecond)
	cfg.Faults.Actions = []*scenario.ActionConfig{
		{Kind: "kill-rank", Rank: 1, Force: true},
	}
	cfg.Poll = fastPoll()

	entry, err := runner.Run(test.Context(t), cfg)
	if err != nil {
		t.Fatal(err)
	}

	test.AssertTrue(t, entry.Passed, "expected campaign scenario to pass")
	test.AssertEqual(t, "campaign-kill-one", entry.Scenario, "unexpected scenario name")
	test.AssertEqual(t, 16, len(entry.ConfigDigest), "unexpected digest length")

	// Cleanup restarted the killed rank.
	states, err := sim.QueryRankStates(test.Context(t), []ranklist.Rank{1})
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, cluster.MemberStateJoined, states[1], "rank should be restarted")
}

// A rebuild scenario against the simulator observes the pool going
// idle, then busy, then done, with the data moved off the victim.
func TestScenario_RunRebuild(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	sim := cluster.NewSim(log, simConfig())
	runner := scenario.NewRunner(log, simBindings(sim))

	cfg := scenario.DefaultConfig()
	cfg.Name = "rebuild-one-rank"
	cfg.Kind = scenario.KindRebuild
	cfg.Faults.VictimCount = 1
	cfg.Poll = fastPoll()

	entry, err := runner.Run(test.Context(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Passed {
		t.Fatalf("rebuild failures: %v", entry.Failures)
	}
}

func TestScenario_RunReplay(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	sim := cluster.NewSim(log, simConfig())
	runner := scenario.NewRunner(log, simBindings(sim))

	cfg := scenario.DefaultConfig()
	cfg.Name = "replay-all-engines"
	cfg.Kind = scenario.KindReplay
	cfg.Poll = fastPoll()

	entry, err := runner.Run(test.Context(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Passed {
		t.Fatalf("replay failures: %v", entry.Failures)
	}

	// All engines are back after the restart.
	states, err := sim.QueryRankStates(test.Context(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	for rank, state := range states {
		test.AssertEqual(t, cluster.MemberStateJoined, state,
			fmt.Sprintf("rank %d not rejoined", rank))
	}
}

func TestScenario_PickVictims(t *testing.T) {
	ranks := []ranklist.Rank{0, 1, 2, 3}

	for name, tc := range map[string]struct {
		leader     ranklist.Rank
		count      int
		expVictims []ranklist.Rank
		expErr     error
	}{
		"skips leader": {
			leader:     0,
			count:      2,
			expVictims: []ranklist.Rank{1, 2},
		},
		"leader mid-list": {
			leader:     1,
			count:      3,
			expVictims: []ranklist.Rank{0, 2, 3},
		},
		"not enough ranks": {
			leader: 0,
			count:  4,
			expErr: errors.New("need 4 victim ranks, only 3 available"),
		},
		"zero count": {
			leader: 0,
			count:  0,
			expErr: errors.New("victim count must be positive"),
		},
	} {
		t.Run(name, func(t *testing.T) {
			gotVictims, gotErr := scenario.PickVictims(ranks, tc.leader, tc.count)
			test.CmpErr(t, tc.expErr, gotErr)
			if tc.expErr != nil {
				return
			}
			test.AssertEqual(t, tc.expVictims, gotVictims, "unexpected victims")
		})
	}
}

func TestScenario_WaitForFreeSpace(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	nvme := func(free uint64) *cluster.PoolInfo {
		return &cluster.PoolInfo{
			Nvme: &cluster.StorageUsage{Total: 1 << 30, Free: free},
		}
	}

	// Free space recovers on the third query, as aggregation would
	// reclaim it.
	pool := cluster.NewMockPool(&cluster.MockPoolConfig{
		QueryResps: []*cluster.PoolInfo{
			nvme(1 << 10),
			nvme(1 << 20),
			nvme(1 << 29),
		},
	})

	err := scenario.WaitForFreeSpace(test.Context(t), log, pool, test.MockUUID(1),
		cluster.MediaNvme, 1<<28, time.Millisecond, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, 3, pool.QueryCount(), "unexpected query count")

	err = scenario.WaitForFreeSpace(test.Context(t), log, pool, test.MockUUID(1),
		cluster.MediaNvme, 1<<30, time.Millisecond, 20*time.Millisecond)
	test.CmpErr(t, errors.New("did not converge"), err)
}
