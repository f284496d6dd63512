//
// (C) Copyright 2021-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package cluster_test

import (
	"sort"
	"testing"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/common/test"
	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/logging"
)

func testSim(t *testing.T, log logging.Logger) *cluster.Sim {
	t.Helper()

	cfg := cluster.DefaultSimConfig()
	cfg.RebuildTicks = 2
	cfg.BenchDuration = 0
	return cluster.NewSim(log, cfg)
}

func createPool(t *testing.T, sim *cluster.Sim) string {
	t.Helper()

	poolID, err := sim.Create(test.Context(t), &cluster.PoolCreateReq{Label: t.Name()})
	if err != nil {
		t.Fatal(err)
	}
	return poolID
}

// Observed through pool queries, a simulated rebuild passes through
// idle, busy and done, and moves the data off the stopped rank.
func TestSim_RebuildProgression(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	sim := testSim(t, log)
	ctx := test.Context(t)
	poolID := createPool(t, sim)

	cont := sim.NewContainer(poolID)
	if err := cont.Create(ctx); err != nil {
		t.Fatal(err)
	}
	victim := ranklist.Rank(2)
	if err := cont.WriteObjects(ctx, victim, "RP_2GX"); err != nil {
		t.Fatal(err)
	}

	pi, err := sim.Query(ctx, poolID)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, cluster.RebuildStateIdle, pi.RebuildState(), "expected idle pool")
	test.AssertEqual(t, uint32(0), pi.DisabledTargets, "expected no disabled targets")

	if err := sim.StopRanks(ctx, []ranklist.Rank{victim}, true); err != nil {
		t.Fatal(err)
	}

	var states []cluster.RebuildState
	for i := 0; i < 5; i++ {
		pi, err = sim.Query(ctx, poolID)
		if err != nil {
			t.Fatal(err)
		}
		states = append(states, pi.RebuildState())
		if pi.RebuildState() == cluster.RebuildStateDone {
			break
		}
	}
	test.AssertEqual(t, []cluster.RebuildState{
		cluster.RebuildStateBusy,
		cluster.RebuildStateDone,
	}, states, "unexpected rebuild state progression")
	test.AssertEqual(t, uint32(8), pi.DisabledTargets, "unexpected disabled target count")

	count, err := cont.ObjectsOnRank(ctx, victim)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, 0, count, "objects should have moved off the stopped rank")

	if err := cont.ReadObjects(ctx); err != nil {
		t.Fatal(err)
	}
}

// Marking a device which hosts system metadata faulty must fail and
// takes the host's engine with it; a plain data device is simply
// marked faulty.
func TestSim_SetFaulty(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	sim := testSim(t, log)
	ctx := test.Context(t)

	devices, err := sim.DeviceUUIDs(ctx, "host-000")
	if err != nil {
		t.Fatal(err)
	}

	var sysXS, data *cluster.Device
	for i, device := range devices["host-000"] {
		if device.HasSysXS {
			sysXS = &devices["host-000"][i]
		} else {
			data = &devices["host-000"][i]
		}
	}
	if sysXS == nil || data == nil {
		t.Fatal("expected both device roles on host-000")
	}

	test.CmpErr(t, errors.New("hosts system metadata"),
		sim.SetFaulty(ctx, "host-000", sysXS.UUID))
	states, err := sim.QueryRankStates(ctx, []ranklist.Rank{0})
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, cluster.MemberStateExcluded, states[0], "engine should be excluded")

	if err := sim.SetFaulty(ctx, "host-001", ""); err == nil {
		t.Fatal("expected error for unknown device")
	}
	if err := sim.SetFaulty(ctx, "host-000", data.UUID); err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, []string{data.UUID}, sim.FaultyDevices(), "unexpected faulty devices")
}

// Snapshots and properties survive a full engine restart.
func TestSim_StateSurvivesRestart(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	sim := testSim(t, log)
	ctx := test.Context(t)
	poolID := createPool(t, sim)

	cont := sim.NewContainer(poolID)
	if err := cont.Create(ctx); err != nil {
		t.Fatal(err)
	}
	if err := cont.WriteObjects(ctx, 0, "SX"); err != nil {
		t.Fatal(err)
	}
	if err := cont.SetProp(ctx, "label", "restart-check"); err != nil {
		t.Fatal(err)
	}

	var wantSnaps []uint64
	for i := 0; i < 2; i++ {
		epoch, err := cont.CreateSnap(ctx)
		if err != nil {
			t.Fatal(err)
		}
		wantSnaps = append(wantSnaps, epoch)
	}

	all, err := sim.AllRanks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.StopRanks(ctx, all, true); err != nil {
		t.Fatal(err)
	}
	if err := sim.StartRanks(ctx, all); err != nil {
		t.Fatal(err)
	}

	if err := cont.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	gotSnaps, err := cont.ListSnaps(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(gotSnaps, func(i, j int) bool { return gotSnaps[i] < gotSnaps[j] })
	test.AssertEqual(t, wantSnaps, gotSnaps, "snapshot epochs changed across restart")

	props, err := cont.GetProp(ctx, "label")
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, []cluster.PropEntry{{Name: "label", Value: "restart-check"}},
		props, "container property changed across restart")

	if err := cont.ReadObjects(ctx); err != nil {
		t.Fatal(err)
	}
}
