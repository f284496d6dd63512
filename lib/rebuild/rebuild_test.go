//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package rebuild_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/common/test"
	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/lib/rebuild"
	"github.com/daos-stack/rift/logging"
)

func poolResp(state cluster.RebuildState, disabled uint32, errno int32) *cluster.PoolInfo {
	return &cluster.PoolInfo{
		UUID:            test.MockUUID(1),
		TotalTargets:    32,
		ActiveTargets:   32 - disabled,
		TotalEngines:    4,
		DisabledTargets: disabled,
		Rebuild: &cluster.RebuildStatus{
			Status:  errno,
			State:   state,
			Objects: 8,
			Records: 512,
		},
		Scm:  &cluster.StorageUsage{Total: 1 << 32, Free: 1 << 31},
		Nvme: &cluster.StorageUsage{Total: 1 << 36, Free: 1 << 35},
	}
}

func testLifecycle(t *testing.T, log logging.Logger, pool *cluster.MockPool, cont *cluster.MockContainer) *rebuild.Lifecycle {
	t.Helper()

	sys := cluster.NewMockSystem(nil)
	lc := rebuild.New(log, sys, pool)
	lc.PoolReq = &cluster.PoolCreateReq{Label: "rebuild-test", ScmBytes: 1 << 32}
	lc.NewContainer = func(_ string) cluster.Container { return cont }
	lc.ObjectClass = "RP_2GX"
	lc.VictimRanks = []ranklist.Rank{1}
	lc.PostExpect = &rebuild.Expectation{
		DisabledTargets: 8,
		State:           cluster.RebuildStateDone,
	}
	lc.PollInterval = time.Millisecond
	lc.StartTimeout = time.Second
	lc.EndTimeout = time.Second

	return lc
}

func TestRebuild_FullCycle(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	pool := cluster.NewMockPool(&cluster.MockPoolConfig{
		CreateID: test.MockUUID(1),
		QueryResps: []*cluster.PoolInfo{
			poolResp(cluster.RebuildStateIdle, 0, 0),
			poolResp(cluster.RebuildStateIdle, 0, 0),
			poolResp(cluster.RebuildStateBusy, 8, 0),
			poolResp(cluster.RebuildStateBusy, 8, 0),
			poolResp(cluster.RebuildStateDone, 8, 0),
		},
	})
	cont := cluster.NewMockContainer(&cluster.MockContainerConfig{
		ID:     test.MockUUID(2),
		PoolID: test.MockUUID(1),
		ObjectCounts: []map[ranklist.Rank]int{
			{1: 8},
			{1: 0},
		},
	})

	var hookRan bool
	lc := testLifecycle(t, log, pool, cont)
	lc.DuringRebuild = func(_ context.Context, poolID string) error {
		hookRan = true
		test.AssertEqual(t, test.MockUUID(1), poolID, "unexpected pool id in hook")
		return nil
	}

	if err := lc.Execute(test.Context(t)); err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, rebuild.PhaseDataVerified, lc.Phase(), "unexpected final phase")
	test.AssertTrue(t, hookRan, "during-rebuild hook did not run")
	test.AssertEqual(t, []ranklist.Rank{1}, cont.WriteCalls, "unexpected write calls")
	test.AssertEqual(t, 1, cont.ReadCalls, "unexpected read calls")
	gotProps, err := cont.GetProp(test.Context(t), "status")
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, []cluster.PropEntry{{Name: "status", Value: "healthy"}},
		gotProps, "container status not re-marked healthy after rebuild")
	test.AssertEqual(t, 0, len(pool.SetPropCalls), "unexpected pool prop calls")
}

func TestRebuild_ExecuteFailures(t *testing.T) {
	for name, tc := range map[string]struct {
		queryResps   []*cluster.PoolInfo
		objectCounts []map[ranklist.Rank]int
		readErr      error
		expErr       error
		expPhase     rebuild.Phase
	}{
		"degraded baseline": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 4, 0),
			},
			expErr:   rebuild.FaultBaselineMismatch("4 targets already disabled"),
			expPhase: rebuild.PhaseSetup,
		},
		"rebuild already running": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateBusy, 0, 0),
			},
			expErr:   rebuild.FaultBaselineMismatch("rebuild is busy"),
			expPhase: rebuild.PhaseSetup,
		},
		"no objects on victim": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 0, 0),
			},
			objectCounts: []map[ranklist.Rank]int{{1: 0}},
			expErr:       rebuild.FaultBaselineMismatch("no objects placed on victim rank 1"),
			expPhase:     rebuild.PhaseSetup,
		},
		"disabled count regresses": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 0, 0),
				poolResp(cluster.RebuildStateBusy, 8, 0),
				poolResp(cluster.RebuildStateBusy, 4, 0),
			},
			expErr:   rebuild.FaultDisabledRegression(8, 4),
			expPhase: rebuild.PhaseRebuildStarted,
		},
		"rebuild completes with errno": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 0, 0),
				poolResp(cluster.RebuildStateBusy, 8, 0),
				poolResp(cluster.RebuildStateDone, 8, -1012),
			},
			expErr:   errors.New("rebuild completed with error -1012"),
			expPhase: rebuild.PhaseRebuildStarted,
		},
		"objects remain on victim": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 0, 0),
				poolResp(cluster.RebuildStateBusy, 8, 0),
				poolResp(cluster.RebuildStateDone, 8, 0),
			},
			objectCounts: []map[ranklist.Rank]int{{1: 8}, {1: 3}},
			expErr:       rebuild.FaultPostMismatch("3 objects still on stopped rank 1"),
			expPhase:     rebuild.PhaseRebuildEnded,
		},
		"post state mismatch": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 0, 0),
				poolResp(cluster.RebuildStateBusy, 8, 0),
				poolResp(cluster.RebuildStateDone, 8, 0),
				poolResp(cluster.RebuildStateDone, 16, 0),
			},
			expErr:   rebuild.FaultPostMismatch("want 8 disabled targets, got 16"),
			expPhase: rebuild.PhaseRebuildEnded,
		},
		"data verify fails": {
			queryResps: []*cluster.PoolInfo{
				poolResp(cluster.RebuildStateIdle, 0, 0),
				poolResp(cluster.RebuildStateBusy, 8, 0),
				poolResp(cluster.RebuildStateDone, 8, 0),
			},
			readErr:  errors.New("checksum mismatch"),
			expErr:   errors.New("checksum mismatch"),
			expPhase: rebuild.PhasePostVerified,
		},
	} {
		t.Run(name, func(t *testing.T) {
			log, buf := logging.NewTestLogger(t.Name())
			defer test.ShowBufferOnFailure(t, buf)

			counts := tc.objectCounts
			if counts == nil {
				counts = []map[ranklist.Rank]int{{1: 8}, {1: 0}}
			}
			pool := cluster.NewMockPool(&cluster.MockPoolConfig{
				CreateID:   test.MockUUID(1),
				QueryResps: tc.queryResps,
			})
			cont := cluster.NewMockContainer(&cluster.MockContainerConfig{
				ID:           test.MockUUID(2),
				PoolID:       test.MockUUID(1),
				ReadErr:      tc.readErr,
				ObjectCounts: counts,
			})

			lc := testLifecycle(t, log, pool, cont)
			gotErr := lc.Execute(test.Context(t))
			test.CmpErr(t, tc.expErr, gotErr)
			test.AssertEqual(t, tc.expPhase, lc.Phase(), "unexpected phase at failure")
		})
	}
}

func TestRebuild_Validate(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	lc := rebuild.New(log, cluster.NewMockSystem(nil), cluster.NewMockPool(nil))
	test.CmpErr(t, errors.New("no pool create request"), lc.Execute(test.Context(t)))

	lc.PoolReq = &cluster.PoolCreateReq{Label: "t"}
	test.CmpErr(t, errors.New("no container factory"), lc.Execute(test.Context(t)))

	lc.NewContainer = func(_ string) cluster.Container { return cluster.NewMockContainer(nil) }
	test.CmpErr(t, errors.New("no victim ranks"), lc.Execute(test.Context(t)))

	lc.VictimRanks = []ranklist.Rank{0}
	test.CmpErr(t, errors.New("no post-rebuild expectation"), lc.Execute(test.Context(t)))
}
