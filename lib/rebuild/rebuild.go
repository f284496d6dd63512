//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package rebuild drives a pool through a full failure-and-recovery
// cycle and verifies the pool's health at every step.
package rebuild

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/poller"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/logging"
)

// Phase tracks progress through the lifecycle. Phases are strictly
// ordered; a step may only run when all earlier phases are complete.
type Phase int

const (
	// PhaseSetup covers pool and container creation.
	PhaseSetup Phase = iota
	// PhaseBaselineVerified means the pool was healthy before injection.
	PhaseBaselineVerified
	// PhaseFailureInduced means the victim ranks have been stopped.
	PhaseFailureInduced
	// PhaseRebuildStarted means the pool reported an active rebuild.
	PhaseRebuildStarted
	// PhaseRebuildEnded means the rebuild completed without error.
	PhaseRebuildEnded
	// PhasePostVerified means the degraded pool state matched
	// expectations.
	PhasePostVerified
	// PhaseDataVerified means all data was readable after recovery.
	PhaseDataVerified
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseBaselineVerified:
		return "baseline-verified"
	case PhaseFailureInduced:
		return "failure-induced"
	case PhaseRebuildStarted:
		return "rebuild-started"
	case PhaseRebuildEnded:
		return "rebuild-ended"
	case PhasePostVerified:
		return "post-verified"
	case PhaseDataVerified:
		return "data-verified"
	default:
		return "unknown"
	}
}

// Expectation describes the pool state required after rebuild.
type Expectation struct {
	// DisabledTargets is the exact number of targets which must be
	// disabled once rebuild has completed.
	DisabledTargets uint32
	// State is the rebuild state the pool must report.
	State cluster.RebuildState
}

// Check compares the pool info against the expectation.
func (e *Expectation) Check(pi *cluster.PoolInfo) error {
	if pi.DisabledTargets != e.DisabledTargets {
		return FaultPostMismatch(errors.Errorf(
			"want %d disabled targets, got %d", e.DisabledTargets, pi.DisabledTargets).Error())
	}
	if state := pi.RebuildState(); state != e.State {
		return FaultPostMismatch(errors.Errorf(
			"want rebuild state %s, got %s", e.State, state).Error())
	}
	return nil
}

const (
	defaultPollInterval = time.Second
	defaultStartTimeout = 2 * time.Minute
	defaultEndTimeout   = 10 * time.Minute
)

// Lifecycle executes one failure-and-recovery cycle against a pool.
type Lifecycle struct {
	log  logging.Logger
	sys  cluster.SystemService
	pool cluster.PoolService

	// PoolReq sizes the pool created during setup. Ignored when
	// ExistingPoolID is set.
	PoolReq *cluster.PoolCreateReq
	// ExistingPoolID runs the lifecycle against a pre-created pool
	// instead of creating one.
	ExistingPoolID string
	// NewContainer builds the container used to hold test data.
	NewContainer func(poolID string) cluster.Container
	// ObjectClass is the class used for the test objects.
	ObjectClass string
	// VictimRanks are stopped to induce the failure.
	VictimRanks []ranklist.Rank
	// DuringRebuild, when set, runs while the rebuild is in progress.
	DuringRebuild func(ctx context.Context, poolID string) error
	// PostExpect describes the required pool state after rebuild.
	PostExpect *Expectation

	PollInterval time.Duration
	StartTimeout time.Duration
	EndTimeout   time.Duration

	phase        Phase
	poolID       string
	cont         cluster.Container
	lastDisabled uint32
}

// New returns a Lifecycle using the given cluster services.
func New(log logging.Logger, sys cluster.SystemService, pool cluster.PoolService) *Lifecycle {
	return &Lifecycle{
		log:          log,
		sys:          sys,
		pool:         pool,
		PollInterval: defaultPollInterval,
		StartTimeout: defaultStartTimeout,
		EndTimeout:   defaultEndTimeout,
	}
}

// Phase returns the last completed phase.
func (lc *Lifecycle) Phase() Phase {
	return lc.phase
}

// PoolID returns the identifier of the pool created during setup.
func (lc *Lifecycle) PoolID() string {
	return lc.poolID
}

func (lc *Lifecycle) advance(next Phase) error {
	if next != lc.phase+1 {
		return FaultBadPhase(lc.phase, next)
	}
	lc.phase = next
	lc.log.Infof("lifecycle phase: %s", next)
	return nil
}

// checkDisabled enforces that the disabled target count never
// decreases while the failure is outstanding.
func (lc *Lifecycle) checkDisabled(pi *cluster.PoolInfo) error {
	if pi.DisabledTargets < lc.lastDisabled {
		return FaultDisabledRegression(lc.lastDisabled, pi.DisabledTargets)
	}
	lc.lastDisabled = pi.DisabledTargets
	return nil
}

// Execute runs the full lifecycle. On error the lifecycle stops at
// the failing phase; Phase reports how far it got.
func (lc *Lifecycle) Execute(ctx context.Context) error {
	if err := lc.validate(); err != nil {
		return err
	}

	steps := []func(context.Context) error{
		lc.verifyBaseline,
		lc.induceFailure,
		lc.awaitRebuildStarted,
		lc.awaitRebuildEnded,
		lc.verifyPost,
		lc.verifyData,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (lc *Lifecycle) validate() error {
	if lc.PoolReq == nil && lc.ExistingPoolID == "" {
		return errors.New("no pool create request")
	}
	if lc.NewContainer == nil {
		return errors.New("no container factory")
	}
	if len(lc.VictimRanks) == 0 {
		return errors.New("no victim ranks")
	}
	if lc.PostExpect == nil {
		return errors.New("no post-rebuild expectation")
	}
	return nil
}

// verifyBaseline creates the pool and container, writes test objects
// targeted at the first victim, and confirms the pool is healthy.
func (lc *Lifecycle) verifyBaseline(ctx context.Context) error {
	poolID := lc.ExistingPoolID
	if poolID == "" {
		var err error
		if poolID, err = lc.pool.Create(ctx, lc.PoolReq); err != nil {
			return errors.Wrap(err, "create pool")
		}
	}
	lc.poolID = poolID

	pi, err := lc.pool.Query(ctx, poolID)
	if err != nil {
		return errors.Wrapf(err, "query pool %s", poolID)
	}
	if pi.DisabledTargets != 0 {
		return FaultBaselineMismatch(errors.Errorf(
			"%d targets already disabled", pi.DisabledTargets).Error())
	}
	if state := pi.RebuildState(); state != cluster.RebuildStateIdle {
		return FaultBaselineMismatch(errors.Errorf(
			"rebuild is %s", state).Error())
	}

	lc.cont = lc.NewContainer(poolID)
	if err := lc.cont.Create(ctx); err != nil {
		return errors.Wrap(err, "create container")
	}

	victim := lc.VictimRanks[0]
	if err := lc.cont.WriteObjects(ctx, victim, lc.ObjectClass); err != nil {
		return errors.Wrapf(err, "write objects to rank %d", victim)
	}

	// The failure is only meaningful if the victim actually holds
	// data.
	count, err := lc.cont.ObjectsOnRank(ctx, victim)
	if err != nil {
		return errors.Wrapf(err, "count objects on rank %d", victim)
	}
	if count == 0 {
		return FaultBaselineMismatch(errors.Errorf(
			"no objects placed on victim rank %d", victim).Error())
	}
	lc.log.Debugf("%d objects placed on victim rank %d", count, victim)

	return lc.advance(PhaseBaselineVerified)
}

func (lc *Lifecycle) induceFailure(ctx context.Context) error {
	if err := lc.sys.StopRanks(ctx, lc.VictimRanks, true); err != nil {
		return errors.Wrapf(err, "stop ranks %s", ranklist.RankList(lc.VictimRanks))
	}
	return lc.advance(PhaseFailureInduced)
}

func (lc *Lifecycle) awaitRebuildStarted(ctx context.Context) error {
	p := poller.New(lc.log, "rebuild start", lc.PollInterval, lc.StartTimeout)
	result, err := p.Poll(ctx, func(ctx context.Context) (bool, error) {
		pi, err := lc.pool.Query(ctx, lc.poolID)
		if err != nil {
			return false, err
		}
		if err := lc.checkDisabled(pi); err != nil {
			return false, err
		}
		// A fast rebuild may be done before it is ever seen busy.
		state := pi.RebuildState()
		return state == cluster.RebuildStateBusy || state == cluster.RebuildStateDone, nil
	})
	if err != nil {
		return err
	}
	if err := poller.FaultFromResult("rebuild start", result); err != nil {
		return err
	}
	return lc.advance(PhaseRebuildStarted)
}

func (lc *Lifecycle) awaitRebuildEnded(ctx context.Context) error {
	if lc.DuringRebuild != nil {
		if err := lc.DuringRebuild(ctx, lc.poolID); err != nil {
			return errors.Wrap(err, "during-rebuild hook")
		}
	}

	var rebuildErrno int32
	p := poller.New(lc.log, "rebuild end", lc.PollInterval, lc.EndTimeout)
	result, err := p.Poll(ctx, func(ctx context.Context) (bool, error) {
		pi, err := lc.pool.Query(ctx, lc.poolID)
		if err != nil {
			return false, err
		}
		if err := lc.checkDisabled(pi); err != nil {
			return false, err
		}
		if pi.RebuildState() != cluster.RebuildStateDone {
			return false, nil
		}
		rebuildErrno = pi.Rebuild.Status
		return true, nil
	})
	if err != nil {
		return err
	}
	if err := poller.FaultFromResult("rebuild end", result); err != nil {
		return err
	}
	if rebuildErrno != 0 {
		return errors.Errorf("rebuild completed with error %d", rebuildErrno)
	}

	// Recovery is complete; mark the container healthy again.
	if err := lc.cont.SetProp(ctx, "status", "healthy"); err != nil {
		return errors.Wrap(err, "re-mark container healthy")
	}

	return lc.advance(PhaseRebuildEnded)
}

// verifyPost confirms the degraded pool state and that no shard of
// the test data remains on the victims.
func (lc *Lifecycle) verifyPost(ctx context.Context) error {
	pi, err := lc.pool.Query(ctx, lc.poolID)
	if err != nil {
		return errors.Wrapf(err, "query pool %s", lc.poolID)
	}
	if err := lc.checkDisabled(pi); err != nil {
		return err
	}
	if err := lc.PostExpect.Check(pi); err != nil {
		return err
	}

	if err := lc.cont.Refresh(ctx); err != nil {
		return errors.Wrap(err, "refresh container")
	}
	for _, victim := range lc.VictimRanks {
		count, err := lc.cont.ObjectsOnRank(ctx, victim)
		if err != nil {
			return errors.Wrapf(err, "count objects on rank %d", victim)
		}
		if count != 0 {
			return FaultPostMismatch(errors.Errorf(
				"%d objects still on stopped rank %d", count, victim).Error())
		}
	}

	return lc.advance(PhasePostVerified)
}

func (lc *Lifecycle) verifyData(ctx context.Context) error {
	if err := lc.cont.ReadObjects(ctx); err != nil {
		return errors.Wrap(err, "read objects after rebuild")
	}
	return lc.advance(PhaseDataVerified)
}
