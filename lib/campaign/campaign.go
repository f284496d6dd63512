//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package campaign runs an I/O workload concurrently with one or
// more delayed fault actions and collects every failure observed
// across the run.
package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/inject"
	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/logging"
)

// LoadFn drives the I/O workload for the duration of the campaign.
type LoadFn func(ctx context.Context) error

// Campaign describes one concurrent load-plus-faults run.
type Campaign struct {
	log      logging.Logger
	injector *inject.Injector

	// Name identifies the campaign in logs and results.
	Name string
	// Load is the workload to run; it must keep the cluster busy at
	// least until the fault actions have been applied.
	Load LoadFn
	// FaultDelay is how long after load start the fault actions are
	// applied.
	FaultDelay time.Duration
	// Actions are applied concurrently once the delay has elapsed.
	Actions []*inject.Action
}

// Result collects the failures observed during a campaign run.
type Result struct {
	mu       sync.Mutex
	Failures []string
}

func (r *Result) fail(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Passed indicates whether the campaign completed without failures.
func (r *Result) Passed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures) == 0
}

// Err returns an aggregated error for a failed campaign, or nil.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Failures) == 0 {
		return nil
	}
	return errors.Errorf("%d campaign failure(s): %s",
		len(r.Failures), strings.Join(r.Failures, "; "))
}

// New returns a Campaign using the given injector for its fault
// actions.
func New(log logging.Logger, injector *inject.Injector, name string) *Campaign {
	return &Campaign{
		log:      log,
		injector: injector,
		Name:     name,
	}
}

// validate rejects campaigns in which two fault actions race on the
// same rank; the combined effect would be unpredictable.
func (c *Campaign) validate() error {
	if c.Load == nil {
		return errors.New("campaign has no load")
	}
	if len(c.Actions) == 0 {
		return errors.New("campaign has no fault actions")
	}

	seen := make(map[ranklist.Rank]struct{})
	for _, action := range c.Actions {
		if action.Kind == inject.SetDeviceFaulty {
			continue
		}
		if _, found := seen[action.Rank]; found {
			return inject.FaultDuplicateRank(action.Rank)
		}
		seen[action.Rank] = struct{}{}
	}
	return nil
}

// Run starts the load, applies every fault action after the
// configured delay, and waits for all of them and then the load to
// finish. Failures are collected rather than aborting the run; the
// returned error covers configuration problems only.
func (c *Campaign) Run(ctx context.Context) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	result := new(Result)

	var loadWG sync.WaitGroup
	loadWG.Add(1)
	go func() {
		defer loadWG.Done()
		defer func() {
			if pv := recover(); pv != nil {
				result.fail("load panicked: %v", pv)
			}
		}()

		c.log.Infof("campaign %s: load started", c.Name)
		if err := c.Load(ctx); err != nil {
			result.fail("load failed: %s", err)
		}
	}()

	var faultWG sync.WaitGroup
	for _, action := range c.Actions {
		faultWG.Add(1)
		go func(action *inject.Action) {
			defer faultWG.Done()
			defer func() {
				if pv := recover(); pv != nil {
					result.fail("fault action %s panicked: %v", action, pv)
				}
			}()

			if c.FaultDelay > 0 {
				select {
				case <-ctx.Done():
					result.fail("fault action %s canceled: %s", action, ctx.Err())
					return
				case <-time.After(c.FaultDelay):
				}
			}

			if err := c.injector.Apply(ctx, action); err != nil {
				result.fail("fault action %s failed: %s", action, err)
			}
		}(action)
	}

	// All faults must have landed before the load is allowed to
	// decide the campaign's fate.
	faultWG.Wait()
	c.log.Debugf("campaign %s: all fault actions finished", c.Name)
	loadWG.Wait()

	if result.Passed() {
		c.log.Noticef("campaign %s: passed", c.Name)
	} else {
		c.log.Errorf("campaign %s: %s", c.Name, result.Err())
	}

	return result, nil
}
