//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package inject applies controlled fault actions to a running
// cluster and verifies that the system settles into the expected
// degraded state afterwards.
package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/poller"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/logging"
)

// Kind discriminates the supported fault actions.
type Kind int

const (
	// KillRank stops an engine process without warning.
	KillRank Kind = iota
	// ExcludeTarget removes storage targets on a rank from a pool.
	ExcludeTarget
	// SetDeviceFaulty marks an NVMe device as faulty.
	SetDeviceFaulty
)

func (k Kind) String() string {
	switch k {
	case KillRank:
		return "kill-rank"
	case ExcludeTarget:
		return "exclude-target"
	case SetDeviceFaulty:
		return "set-device-faulty"
	default:
		return "unknown"
	}
}

// ParseKind parses a fault action kind name.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "kill-rank":
		return KillRank, nil
	case "exclude-target":
		return ExcludeTarget, nil
	case "set-device-faulty":
		return SetDeviceFaulty, nil
	default:
		return KillRank, errors.Errorf("unknown fault action kind %q", name)
	}
}

// Action describes one fault to apply.
type Action struct {
	Kind       Kind
	Rank       ranklist.Rank
	Force      bool
	PoolID     string
	Targets    []uint32
	Host       string
	DeviceUUID string
	// ExpectRejection marks a SetDeviceFaulty action against a
	// device hosting system metadata, for which the request must be
	// rejected by the server.
	ExpectRejection bool
}

func (a *Action) String() string {
	switch a.Kind {
	case KillRank:
		return fmt.Sprintf("%s rank %d", a.Kind, a.Rank)
	case ExcludeTarget:
		return fmt.Sprintf("%s rank %d targets %v pool %s", a.Kind, a.Rank, a.Targets, a.PoolID)
	case SetDeviceFaulty:
		return fmt.Sprintf("%s device %s on %s", a.Kind, a.DeviceUUID, a.Host)
	default:
		return a.Kind.String()
	}
}

const (
	defaultVerifyInterval = time.Second
	defaultVerifyAttempts = 30
)

// Injector applies fault actions and verifies their effect on rank
// membership.
type Injector struct {
	log     logging.Logger
	sys     cluster.SystemService
	pool    cluster.PoolService
	storage cluster.StorageService

	// VerifyInterval is the cadence of post-action membership checks.
	VerifyInterval time.Duration
	// VerifyAttempts bounds the post-action membership checks.
	VerifyAttempts uint
	// Observer, when set, is notified of every applied action and
	// its outcome.
	Observer func(kind string, err error)
	// Cleanup, when set, collects compensating steps for applied
	// actions so they can be undone at teardown.
	Cleanup *CleanupRegistry
}

// New returns an Injector using the given cluster services.
func New(log logging.Logger, sys cluster.SystemService, pool cluster.PoolService, storage cluster.StorageService) *Injector {
	return &Injector{
		log:            log,
		sys:            sys,
		pool:           pool,
		storage:        storage,
		VerifyInterval: defaultVerifyInterval,
		VerifyAttempts: defaultVerifyAttempts,
	}
}

// Apply performs the given fault action. The call returns once the
// action has been applied and its immediate effect on membership has
// been verified; it does not wait for any resulting rebuild.
func (in *Injector) Apply(ctx context.Context, action *Action) (err error) {
	if action == nil {
		return errors.New("nil fault action")
	}

	in.log.Noticef("applying fault action: %s", action)
	if in.Observer != nil {
		defer func() {
			in.Observer(action.Kind.String(), err)
		}()
	}

	switch action.Kind {
	case KillRank:
		return in.killRank(ctx, action)
	case ExcludeTarget:
		return in.excludeTarget(ctx, action)
	case SetDeviceFaulty:
		return in.setDeviceFaulty(ctx, action)
	default:
		return errors.Errorf("unknown fault action kind %d", action.Kind)
	}
}

func (in *Injector) killRank(ctx context.Context, action *Action) error {
	ranks := []ranklist.Rank{action.Rank}
	if err := in.sys.StopRanks(ctx, ranks, action.Force); err != nil {
		return errors.Wrapf(err, "stop rank %d", action.Rank)
	}
	return in.awaitRanksDown(ctx, ranks)
}

func (in *Injector) excludeTarget(ctx context.Context, action *Action) error {
	err := in.pool.ExcludeTargets(ctx, action.PoolID, action.Rank, action.Targets)
	return errors.Wrapf(err, "exclude targets %v on rank %d", action.Targets, action.Rank)
}

func (in *Injector) setDeviceFaulty(ctx context.Context, action *Action) error {
	err := in.storage.SetFaulty(ctx, action.Host, action.DeviceUUID)

	if action.ExpectRejection {
		if err == nil {
			return FaultUnexpectedSuccess(action.Host, action.DeviceUUID)
		}
		in.log.Debugf("set-faulty rejected as required: %s", err)

		// Rejection takes the host's engines down with it; wait for
		// their ranks to leave the joined state.
		ranks, err := in.hostRanks(ctx, action.Host)
		if err != nil {
			return err
		}
		return in.awaitRanksDown(ctx, ranks)
	}

	if err != nil {
		return errors.Wrapf(err, "set device %s faulty", action.DeviceUUID)
	}

	if in.Cleanup != nil {
		host, uuid := action.Host, action.DeviceUUID
		in.Cleanup.Register("reset faulty device "+uuid, func(ctx context.Context) error {
			return in.storage.LedIdentify(ctx, host, uuid, true)
		})
	}

	// Flash the identification LED so the device can be found for
	// replacement.
	if err := in.storage.LedIdentify(ctx, action.Host, action.DeviceUUID, false); err != nil {
		in.log.Errorf("led identify for %s failed: %s", action.DeviceUUID, err)
	}
	return nil
}

func (in *Injector) hostRanks(ctx context.Context, host string) ([]ranklist.Rank, error) {
	hosts, err := in.sys.RankHosts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "map ranks to hosts")
	}

	var ranks []ranklist.Rank
	for rank, rankHost := range hosts {
		if rankHost == host {
			ranks = append(ranks, rank)
		}
	}
	if len(ranks) == 0 {
		return nil, errors.Errorf("no ranks found on host %s", host)
	}
	return ranks, nil
}

// awaitRanksDown polls rank membership until every given rank has
// left the joined state.
func (in *Injector) awaitRanksDown(ctx context.Context, ranks []ranklist.Rank) error {
	downStates := cluster.MemberStateStopped | cluster.MemberStateExcluded | cluster.MemberStateErrored

	p := poller.NewBounded(in.log, fmt.Sprintf("ranks %s down", ranklist.RankList(ranks)),
		in.VerifyInterval, in.VerifyAttempts)
	result, err := p.Poll(ctx, func(ctx context.Context) (bool, error) {
		states, err := in.sys.QueryRankStates(ctx, ranks)
		if err != nil {
			return false, err
		}
		for _, rank := range ranks {
			if !states[rank].IsOneOf(downStates) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	return poller.FaultFromResult(fmt.Sprintf("ranks %s down", ranklist.RankList(ranks)), result)
}
