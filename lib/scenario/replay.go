//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package scenario

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/inject"
	"github.com/daos-stack/rift/lib/poller"
	"github.com/daos-stack/rift/lib/ranklist"
)

const (
	replayPoolProp  = "reclaim"
	replayPoolValue = "lazy"
	replayContProp  = "label"
	replayContValue = "replay-check"
	replaySnapCount = 2
)

// runReplay writes data, snapshots it, restarts every engine in the
// system and verifies that all persisted state survived the replay
// of the write-ahead log.
func (r *Runner) runReplay(ctx context.Context, cfg *Config, cleanup *inject.CleanupRegistry) ([]string, error) {
	poolID, err := r.createPool(ctx, cfg, cleanup)
	if err != nil {
		return nil, err
	}

	cont := r.bindings.NewContainer(poolID)
	if err := cont.Create(ctx); err != nil {
		return nil, errors.Wrap(err, "create container")
	}

	all, err := r.bindings.Sys.AllRanks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query system ranks")
	}
	if len(all) == 0 {
		return nil, errors.New("system has no ranks")
	}

	if err := cont.WriteObjects(ctx, all[0], cfg.Workload.ObjectClass); err != nil {
		return nil, errors.Wrap(err, "write objects")
	}

	// Persisted state to check after restart: properties on both the
	// pool and the container, plus a set of snapshot epochs.
	if err := r.bindings.Pool.SetProp(ctx, poolID, replayPoolProp, replayPoolValue); err != nil {
		return nil, errors.Wrap(err, "set pool property")
	}
	if err := cont.SetProp(ctx, replayContProp, replayContValue); err != nil {
		return nil, errors.Wrap(err, "set container property")
	}
	wantSnaps := make([]uint64, 0, replaySnapCount)
	for i := 0; i < replaySnapCount; i++ {
		epoch, err := cont.CreateSnap(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "create snapshot")
		}
		wantSnaps = append(wantSnaps, epoch)
	}

	var mount cluster.Mounter
	if r.bindings.NewMount != nil {
		mount = r.bindings.NewMount(cont)
		if err := mount.Start(ctx); err != nil {
			return nil, errors.Wrap(err, "mount container")
		}
		r.log.Debugf("container mounted at %s", mount.Path())
		if err := mount.Stop(ctx); err != nil {
			return nil, errors.Wrap(err, "unmount container")
		}
	}

	if err := r.restartAllRanks(ctx, cfg, all); err != nil {
		return nil, err
	}

	var failures []string
	failf := func(format string, args ...interface{}) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if err := cont.Refresh(ctx); err != nil {
		return nil, errors.Wrap(err, "refresh container")
	}

	gotSnaps, err := cont.ListSnaps(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	if !sameEpochSet(wantSnaps, gotSnaps) {
		failf("snapshot epochs changed across restart: want %v, got %v", wantSnaps, gotSnaps)
	}

	if got, err := propValue(r.bindings.Pool.GetProp(ctx, poolID, replayPoolProp)); err != nil {
		return nil, errors.Wrap(err, "get pool property")
	} else if got != replayPoolValue {
		failf("pool property %s changed across restart: want %q, got %q",
			replayPoolProp, replayPoolValue, got)
	}

	if got, err := propValue(cont.GetProp(ctx, replayContProp)); err != nil {
		return nil, errors.Wrap(err, "get container property")
	} else if got != replayContValue {
		failf("container property %s changed across restart: want %q, got %q",
			replayContProp, replayContValue, got)
	}

	if err := cont.ReadObjects(ctx); err != nil {
		failf("data verification after restart: %s", err)
	}

	if mount != nil {
		if err := mount.Start(ctx); err != nil {
			failf("remount after restart: %s", err)
		} else if err := mount.Stop(ctx); err != nil {
			failf("unmount after restart: %s", err)
		}
	}

	return failures, nil
}

// restartAllRanks stops every engine with force and starts them
// again, polling membership into and out of the stopped state.
func (r *Runner) restartAllRanks(ctx context.Context, cfg *Config, all []ranklist.Rank) error {
	if err := r.bindings.Sys.StopRanks(ctx, all, true); err != nil {
		return errors.Wrap(err, "stop all ranks")
	}
	downStates := cluster.MemberStateStopped | cluster.MemberStateExcluded | cluster.MemberStateErrored
	if err := r.awaitStates(ctx, cfg, all, downStates, "all ranks stopped"); err != nil {
		return err
	}

	if err := r.bindings.Sys.StartRanks(ctx, all); err != nil {
		return errors.Wrap(err, "start all ranks")
	}
	return r.awaitStates(ctx, cfg, all, cluster.MemberStateJoined, "all ranks joined")
}

func (r *Runner) awaitStates(ctx context.Context, cfg *Config, ranks []ranklist.Rank, want cluster.MemberState, name string) error {
	attempts := cfg.Poll.Attempts
	if attempts == 0 {
		attempts = 30
	}
	p := poller.NewBounded(r.log, name, cfg.Poll.Interval.Std(), attempts)
	result, err := p.Poll(ctx, func(ctx context.Context) (bool, error) {
		states, err := r.bindings.Sys.QueryRankStates(ctx, ranks)
		if err != nil {
			return false, err
		}
		for _, rank := range ranks {
			if !states[rank].IsOneOf(want) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	return poller.FaultFromResult(name, result)
}

func sameEpochSet(want, got []uint64) bool {
	if len(want) != len(got) {
		return false
	}
	w := append([]uint64(nil), want...)
	g := append([]uint64(nil), got...)
	sort.Slice(w, func(i, j int) bool { return w[i] < w[j] })
	sort.Slice(g, func(i, j int) bool { return g[i] < g[j] })
	for i := range w {
		if w[i] != g[i] {
			return false
		}
	}
	return true
}

func propValue(entries []cluster.PropEntry, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("property not found")
	}
	return entries[0].Value, nil
}
