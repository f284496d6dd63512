//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package scenario turns declarative YAML scenario configs into
// campaign, rebuild and replay runs against any cluster binding.
package scenario

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/campaign"
	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/lib/inject"
	"github.com/daos-stack/rift/lib/loadgen"
	"github.com/daos-stack/rift/lib/poller"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/lib/rebuild"
	"github.com/daos-stack/rift/lib/results"
	"github.com/daos-stack/rift/lib/telemetry"
	"github.com/daos-stack/rift/logging"
)

// Bindings connects a Runner to a cluster implementation, real or
// simulated.
type Bindings struct {
	Sys     cluster.SystemService
	Pool    cluster.PoolService
	Storage cluster.StorageService
	Bench   cluster.BenchRunner
	// NewContainer builds a container handle within the given pool.
	NewContainer func(poolID string) cluster.Container
	// NewMount, when set, builds a filesystem view of a container
	// for replay scenarios.
	NewMount func(cont cluster.Container) cluster.Mounter
}

func (b *Bindings) validate() error {
	if b == nil {
		return errors.New("nil bindings")
	}
	if b.Sys == nil || b.Pool == nil || b.Storage == nil || b.Bench == nil || b.NewContainer == nil {
		return errors.New("incomplete bindings")
	}
	return nil
}

// Runner executes scenarios.
type Runner struct {
	log      logging.Logger
	bindings *Bindings

	// Store, when set, persists an entry per run.
	Store *results.Store
	// Metrics, when set, receives run telemetry.
	Metrics *telemetry.Metrics
}

// NewRunner returns a Runner over the given bindings.
func NewRunner(log logging.Logger, bindings *Bindings) *Runner {
	return &Runner{
		log:      log,
		bindings: bindings,
	}
}

// Run executes the scenario and returns its recorded outcome. The
// returned error covers setup problems only; scenario failures are
// reported through the entry.
func (r *Runner) Run(ctx context.Context, cfg *Config) (*results.Entry, error) {
	if err := r.bindings.validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("nil scenario config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	digest, err := results.Digest(cfg)
	if err != nil {
		return nil, err
	}

	r.log.Noticef("running scenario %s (%s)", cfg.Name, cfg.Kind)

	cleanup := inject.NewCleanupRegistry(r.log)
	entry := &results.Entry{
		Scenario:     cfg.Name,
		ConfigDigest: digest,
		Start:        time.Now(),
	}

	var failures []string
	switch cfg.Kind {
	case KindCampaign:
		failures, err = r.runCampaign(ctx, cfg, cleanup)
	case KindRebuild:
		failures, err = r.runRebuild(ctx, cfg, cleanup)
	case KindReplay:
		failures, err = r.runReplay(ctx, cfg, cleanup)
	default:
		err = FaultBadConfig("unknown scenario kind " + string(cfg.Kind))
	}

	for _, cleanupErr := range cleanup.Run(ctx) {
		r.log.Errorf("scenario %s: %s", cfg.Name, cleanupErr)
	}
	if err != nil {
		return nil, err
	}

	entry.End = time.Now()
	entry.Failures = failures
	entry.Passed = len(failures) == 0

	if r.Metrics != nil {
		r.Metrics.RecordScenarioRun(cfg.Name, entry.Passed)
	}
	if r.Store != nil {
		if err := r.Store.Record(entry); err != nil {
			return nil, err
		}
	}

	if entry.Passed {
		r.log.Noticef("scenario %s passed in %s", cfg.Name, entry.Duration())
	} else {
		r.log.Errorf("scenario %s failed: %v", cfg.Name, entry.Failures)
	}
	return entry, nil
}

func (r *Runner) newInjector(cfg *Config, cleanup *inject.CleanupRegistry) *inject.Injector {
	in := inject.New(r.log, r.bindings.Sys, r.bindings.Pool, r.bindings.Storage)
	in.VerifyInterval = cfg.Poll.Interval.Std()
	if cfg.Poll.Attempts > 0 {
		in.VerifyAttempts = cfg.Poll.Attempts
	}
	if r.Metrics != nil {
		in.Observer = r.Metrics.RecordFaultAction
	}
	in.Cleanup = cleanup
	return in
}

// createPool creates the scenario pool and registers its teardown.
func (r *Runner) createPool(ctx context.Context, cfg *Config, cleanup *inject.CleanupRegistry) (string, error) {
	scmAvail, nvmeAvail, err := r.bindings.Storage.AvailableStorage(ctx)
	if err != nil {
		return "", errors.Wrap(err, "query available storage")
	}

	req := cfg.Pool.CreateReq(scmAvail, nvmeAvail)
	poolID, err := r.bindings.Pool.Create(ctx, req)
	if err != nil {
		return "", errors.Wrapf(err, "create pool %s", req.Label)
	}
	r.log.Debugf("created pool %s (scm %d, nvme %d)", poolID, req.ScmBytes, req.NvmeBytes)

	cleanup.Register("destroy pool "+poolID, func(ctx context.Context) error {
		return r.bindings.Pool.Destroy(ctx, poolID)
	})
	return poolID, nil
}

func (r *Runner) runCampaign(ctx context.Context, cfg *Config, cleanup *inject.CleanupRegistry) ([]string, error) {
	poolID, err := r.createPool(ctx, cfg, cleanup)
	if err != nil {
		return nil, err
	}

	cont := r.bindings.NewContainer(poolID)
	workload, err := cfg.Workload.ToWorkload(true)
	if err != nil {
		return nil, err
	}
	gen := loadgen.New(r.log, r.bindings.Pool, r.bindings.Bench)

	c := campaign.New(r.log, r.newInjector(cfg, cleanup), cfg.Name)
	c.FaultDelay = cfg.Faults.Delay.Std()
	c.Load = func(ctx context.Context) error {
		_, err := gen.Run(ctx, cont, workload)
		return err
	}
	for _, ac := range cfg.Faults.Actions {
		action, err := ac.ToAction(poolID)
		if err != nil {
			return nil, err
		}
		if action.Kind == inject.KillRank {
			rank := action.Rank
			cleanup.Register("restart rank "+rank.String(), func(ctx context.Context) error {
				return r.bindings.Sys.StartRanks(ctx, []ranklist.Rank{rank})
			})
		}
		c.Actions = append(c.Actions, action)
	}

	result, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	if r.Metrics != nil {
		r.Metrics.RecordCampaignFailures(len(result.Failures))
	}
	return result.Failures, nil
}

func (r *Runner) runRebuild(ctx context.Context, cfg *Config, cleanup *inject.CleanupRegistry) ([]string, error) {
	poolID, err := r.createPool(ctx, cfg, cleanup)
	if err != nil {
		return nil, err
	}

	pi, err := r.bindings.Pool.Query(ctx, poolID)
	if err != nil {
		return nil, errors.Wrapf(err, "query pool %s", poolID)
	}

	victims, err := r.selectVictims(ctx, cfg, pi)
	if err != nil {
		return nil, err
	}
	cleanup.Register("restart ranks "+ranklist.RankList(victims).String(), func(ctx context.Context) error {
		return r.bindings.Sys.StartRanks(ctx, victims)
	})

	perEngine := cfg.System.TargetsPerEngine
	if pi.TotalEngines > 0 {
		perEngine = pi.TotalTargets / pi.TotalEngines
	}

	lc := rebuild.New(r.log, r.bindings.Sys, r.bindings.Pool)
	lc.ExistingPoolID = poolID
	lc.NewContainer = r.bindings.NewContainer
	lc.ObjectClass = cfg.Workload.ObjectClass
	lc.VictimRanks = victims
	lc.PollInterval = cfg.Poll.Interval.Std()
	lc.StartTimeout = cfg.Poll.StartTimeout.Std()
	lc.EndTimeout = cfg.Poll.EndTimeout.Std()
	lc.PostExpect = &rebuild.Expectation{
		DisabledTargets: perEngine * uint32(len(victims)),
		State:           cluster.RebuildStateDone,
	}

	// Extra fault actions land while the rebuild is running.
	if len(cfg.Faults.Actions) > 0 {
		injector := r.newInjector(cfg, cleanup)
		lc.DuringRebuild = func(ctx context.Context, poolID string) error {
			for _, ac := range cfg.Faults.Actions {
				action, err := ac.ToAction(poolID)
				if err != nil {
					return err
				}
				if err := injector.Apply(ctx, action); err != nil {
					return err
				}
			}
			return nil
		}
	}

	start := time.Now()
	execErr := lc.Execute(ctx)
	if r.Metrics != nil && lc.Phase() >= rebuild.PhaseRebuildEnded {
		r.Metrics.RecordRebuildDuration(time.Since(start))
	}
	if execErr != nil {
		return []string{errors.Wrapf(execErr, "phase %s", lc.Phase()).Error()}, nil
	}
	return nil, nil
}

// selectVictims returns the ranks to stop, preferring explicitly
// configured victims and otherwise picking ranks away from the pool
// service leader.
func (r *Runner) selectVictims(ctx context.Context, cfg *Config, pi *cluster.PoolInfo) ([]ranklist.Rank, error) {
	if len(cfg.Faults.Victims) > 0 {
		return ranklist.RanksFromUint32(cfg.Faults.Victims), nil
	}

	all, err := r.bindings.Sys.AllRanks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query system ranks")
	}
	return PickVictims(all, ranklist.Rank(pi.Leader), cfg.Faults.VictimCount)
}

// PickVictims chooses count ranks to stop, skipping the pool service
// leader so the pool stays queryable while degraded.
func PickVictims(ranks []ranklist.Rank, leader ranklist.Rank, count int) ([]ranklist.Rank, error) {
	if count < 1 {
		return nil, errors.New("victim count must be positive")
	}

	victims := make([]ranklist.Rank, 0, count)
	for _, rank := range ranks {
		if rank.Equals(leader) {
			continue
		}
		victims = append(victims, rank)
		if len(victims) == count {
			return victims, nil
		}
	}
	return nil, errors.Errorf("need %d victim ranks, only %d available (leader %d excluded)",
		count, len(victims), leader)
}

// WaitForFreeSpace polls the pool until the given storage tier
// reports at least minFree bytes free.
func WaitForFreeSpace(ctx context.Context, log logging.Logger, pool cluster.PoolService, poolID string, media cluster.StorageMedia, minFree uint64, interval, timeout time.Duration) error {
	p := poller.New(log, "free space recovery", interval, timeout)
	result, err := p.Poll(ctx, func(ctx context.Context) (bool, error) {
		pi, err := pool.Query(ctx, poolID)
		if err != nil {
			return false, err
		}
		return pi.FreeSpace(media) >= minFree, nil
	})
	if err != nil {
		return err
	}
	return poller.FaultFromResult("free space recovery", result)
}
