//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package poller implements a cooperative convergence poller for
// distributed state which is only observable through periodic
// queries.
package poller

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/logging"
)

type (
	// Outcome discriminates the ways a poll can finish.
	Outcome int

	// CheckFn queries external state and reports whether the awaited
	// condition holds. The condition must be evaluated in full on
	// every call; a partial match is a non-match.
	CheckFn func(ctx context.Context) (bool, error)

	// Result describes a finished poll.
	Result struct {
		Outcome  Outcome
		Attempts uint
		Elapsed  time.Duration
	}

	// Poller repeatedly evaluates a condition on a fixed cadence
	// until it holds or the configured bound is reached. When
	// MaxAttempts is nonzero the poll is bounded by attempt count,
	// otherwise by the wall-clock Timeout.
	Poller struct {
		log         logging.Logger
		Name        string
		Interval    time.Duration
		Timeout     time.Duration
		MaxAttempts uint
	}
)

const (
	// OutcomeConverged indicates that the condition held.
	OutcomeConverged Outcome = iota
	// OutcomeTimedOut indicates that the wall-clock deadline elapsed
	// before the condition held.
	OutcomeTimedOut
	// OutcomeExhausted indicates that the attempt bound was reached
	// before the condition held.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeTimedOut:
		return "timed out"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Converged indicates whether the awaited condition held.
func (r *Result) Converged() bool {
	return r != nil && r.Outcome == OutcomeConverged
}

// New returns a Poller with the given name and cadence, bounded by
// the given wall-clock timeout.
func New(log logging.Logger, name string, interval, timeout time.Duration) *Poller {
	return &Poller{
		log:      log,
		Name:     name,
		Interval: interval,
		Timeout:  timeout,
	}
}

// NewBounded returns a Poller with the given name and cadence,
// bounded by the given number of attempts.
func NewBounded(log logging.Logger, name string, interval time.Duration, attempts uint) *Poller {
	return &Poller{
		log:         log,
		Name:        name,
		Interval:    interval,
		MaxAttempts: attempts,
	}
}

// Poll sleeps for the configured interval, evaluates the condition,
// and repeats until the condition holds or the configured bound is
// reached. Errors returned by the condition abort the poll.
func (p *Poller) Poll(ctx context.Context, check CheckFn) (*Result, error) {
	if check == nil {
		return nil, errors.New("nil check function")
	}
	if p.Interval <= 0 {
		return nil, errors.Errorf("invalid poll interval %s", p.Interval)
	}
	if p.MaxAttempts == 0 && p.Timeout <= 0 {
		return nil, errors.Errorf("invalid poll timeout %s", p.Timeout)
	}

	start := time.Now()
	result := new(Result)
	for {
		if p.MaxAttempts > 0 {
			if result.Attempts >= p.MaxAttempts {
				result.Outcome = OutcomeExhausted
				break
			}
		} else if time.Since(start) >= p.Timeout {
			result.Outcome = OutcomeTimedOut
			break
		}

		select {
		case <-ctx.Done():
			result.Elapsed = time.Since(start)
			return result, ctx.Err()
		case <-time.After(p.Interval):
		}

		result.Attempts++
		converged, err := check(ctx)
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, errors.Wrapf(err, "polling %s", p.Name)
		}
		if converged {
			result.Outcome = OutcomeConverged
			break
		}

		p.log.Debugf("polling %s: not converged after %d attempts (%s elapsed)",
			p.Name, result.Attempts, time.Since(start))
	}

	result.Elapsed = time.Since(start)
	p.log.Debugf("polling %s: %s after %d attempts (%s elapsed)",
		p.Name, result.Outcome, result.Attempts, result.Elapsed)

	return result, nil
}
