//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package inject_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/common/test"
	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/inject"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/logging"
)

func rankStates(pairs ...interface{}) map[ranklist.Rank]cluster.MemberState {
	states := make(map[ranklist.Rank]cluster.MemberState)
	for i := 0; i < len(pairs); i += 2 {
		states[ranklist.Rank(pairs[i].(int))] = pairs[i+1].(cluster.MemberState)
	}
	return states
}

func testInjector(t *testing.T, log logging.Logger, sysCfg *cluster.MockSystemConfig, storCfg *cluster.MockStorageConfig) (*inject.Injector, *cluster.MockSystem, *cluster.MockPool, *cluster.MockStorage) {
	t.Helper()

	sys := cluster.NewMockSystem(sysCfg)
	pool := cluster.NewMockPool(nil)
	storage := cluster.NewMockStorage(storCfg)

	in := inject.New(log, sys, pool, storage)
	in.VerifyInterval = time.Millisecond
	in.VerifyAttempts = 10

	return in, sys, pool, storage
}

func TestInject_KillRank(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	// The rank leaves the joined state on the third query.
	in, sys, _, _ := testInjector(t, log, &cluster.MockSystemConfig{
		StateSets: []map[ranklist.Rank]cluster.MemberState{
			rankStates(1, cluster.MemberStateJoined),
			rankStates(1, cluster.MemberStateJoined),
			rankStates(1, cluster.MemberStateStopped),
		},
	}, nil)

	err := in.Apply(test.Context(t), &inject.Action{
		Kind:  inject.KillRank,
		Rank:  1,
		Force: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(sys.StopCalls) != 1 {
		t.Fatalf("expected 1 stop call, got %d", len(sys.StopCalls))
	}
	test.AssertEqual(t, []ranklist.Rank{1}, sys.StopCalls[0].Ranks, "unexpected stopped ranks")
	test.AssertTrue(t, sys.StopCalls[0].Force, "expected forced stop")
}

func TestInject_KillRankNeverLeaves(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	in, _, _, _ := testInjector(t, log, &cluster.MockSystemConfig{
		StateSets: []map[ranklist.Rank]cluster.MemberState{
			rankStates(1, cluster.MemberStateJoined),
		},
	}, nil)

	err := in.Apply(test.Context(t), &inject.Action{Kind: inject.KillRank, Rank: 1})
	test.CmpErr(t, errors.New("did not converge within 10 attempts"), err)
}

func TestInject_ExcludeTarget(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	in, _, pool, _ := testInjector(t, log, nil, nil)

	err := in.Apply(test.Context(t), &inject.Action{
		Kind:    inject.ExcludeTarget,
		Rank:    2,
		PoolID:  test.MockUUID(1),
		Targets: []uint32{0, 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(pool.ExcludeCalls) != 1 {
		t.Fatalf("expected 1 exclude call, got %d", len(pool.ExcludeCalls))
	}
	test.AssertEqual(t, cluster.ExcludeCall{
		PoolID:  test.MockUUID(1),
		Rank:    2,
		Targets: []uint32{0, 3},
	}, pool.ExcludeCalls[0], "unexpected exclude call")
}

func TestInject_SetDeviceFaulty(t *testing.T) {
	dataUUID := test.MockUUID(10)
	sysXSUUID := test.MockUUID(11)

	for name, tc := range map[string]struct {
		action  *inject.Action
		sysCfg  *cluster.MockSystemConfig
		storCfg *cluster.MockStorageConfig
		expErr  error
		expLed  int
	}{
		"data device marked faulty": {
			action: &inject.Action{
				Kind:       inject.SetDeviceFaulty,
				Host:       "host1",
				DeviceUUID: dataUUID,
			},
			expLed: 1,
		},
		"data device set-faulty fails": {
			action: &inject.Action{
				Kind:       inject.SetDeviceFaulty,
				Host:       "host1",
				DeviceUUID: dataUUID,
			},
			storCfg: &cluster.MockStorageConfig{
				SetFaultyResult: map[string]error{dataUUID: errors.New("drpc failure")},
			},
			expErr: errors.New("drpc failure"),
		},
		"metadata device rejection is success": {
			action: &inject.Action{
				Kind:            inject.SetDeviceFaulty,
				Host:            "host1",
				DeviceUUID:      sysXSUUID,
				ExpectRejection: true,
			},
			storCfg: &cluster.MockStorageConfig{
				SetFaultyResult: map[string]error{sysXSUUID: errors.New("device hosts sys metadata")},
			},
			sysCfg: &cluster.MockSystemConfig{
				Hosts: map[ranklist.Rank]string{0: "host1", 1: "host2"},
				StateSets: []map[ranklist.Rank]cluster.MemberState{
					rankStates(0, cluster.MemberStateJoined, 1, cluster.MemberStateJoined),
					rankStates(0, cluster.MemberStateExcluded, 1, cluster.MemberStateJoined),
				},
			},
		},
		"metadata device accepted is failure": {
			action: &inject.Action{
				Kind:            inject.SetDeviceFaulty,
				Host:            "host1",
				DeviceUUID:      sysXSUUID,
				ExpectRejection: true,
			},
			expErr: inject.FaultUnexpectedSuccess("host1", sysXSUUID),
		},
	} {
		t.Run(name, func(t *testing.T) {
			log, buf := logging.NewTestLogger(t.Name())
			defer test.ShowBufferOnFailure(t, buf)

			in, _, _, storage := testInjector(t, log, tc.sysCfg, tc.storCfg)

			gotErr := in.Apply(test.Context(t), tc.action)
			test.CmpErr(t, tc.expErr, gotErr)
			if tc.expErr != nil {
				return
			}

			test.AssertEqual(t, []string{tc.action.DeviceUUID}, storage.FaultyCalls, "unexpected set-faulty calls")
			test.AssertEqual(t, tc.expLed, len(storage.LedCalls), "unexpected led call count")
		})
	}
}

func TestInject_SetFaultyRegistersReset(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	dataUUID := test.MockUUID(10)
	in, _, _, storage := testInjector(t, log, nil, nil)
	cr := inject.NewCleanupRegistry(log)
	in.Cleanup = cr

	err := in.Apply(test.Context(t), &inject.Action{
		Kind:       inject.SetDeviceFaulty,
		Host:       "host1",
		DeviceUUID: dataUUID,
	})
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, 1, cr.Len(), "expected a registered undo step")

	if errs := cr.Run(test.Context(t)); len(errs) != 0 {
		t.Fatalf("unexpected cleanup errors: %v", errs)
	}

	// The faulted device's LED is reset when the cleanup runs.
	test.AssertEqual(t, []cluster.LedCall{
		{Host: "host1", UUID: dataUUID, Reset: false},
		{Host: "host1", UUID: dataUUID, Reset: true},
	}, storage.LedCalls, "device led not reset at cleanup")
}

func TestInject_CleanupRegistry(t *testing.T) {
	log, buf := logging.NewTestLogger(t.Name())
	defer test.ShowBufferOnFailure(t, buf)

	cr := inject.NewCleanupRegistry(log)

	var order []string
	step := func(name string, err error) inject.CleanupFn {
		return func(_ context.Context) error {
			order = append(order, name)
			return err
		}
	}

	cr.Register("restart rank", step("restart rank", nil))
	cr.Register("destroy pool", step("destroy pool", errors.New("pool busy")))
	cr.Register("reset led", step("reset led", nil))
	test.AssertEqual(t, 3, cr.Len(), "unexpected registry length")

	errs := cr.Run(test.Context(t))

	// Reverse order, and the failing step does not stop the rest.
	test.AssertEqual(t, []string{"reset led", "destroy pool", "restart rank"}, order, "unexpected run order")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	test.CmpErr(t, errors.New("pool busy"), errs[0])
	test.AssertEqual(t, 0, cr.Len(), "registry should be emptied")
}
