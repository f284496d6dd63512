//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package inject

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/logging"
)

// CleanupFn undoes one previously applied action.
type CleanupFn func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFn
}

// CleanupRegistry collects undo steps as actions are applied and
// runs them in reverse order during teardown. Every registered step
// runs even if earlier ones fail.
type CleanupRegistry struct {
	log logging.Logger

	mu      sync.Mutex
	entries []cleanupEntry
}

// NewCleanupRegistry returns an empty CleanupRegistry.
func NewCleanupRegistry(log logging.Logger) *CleanupRegistry {
	return &CleanupRegistry{log: log}
}

// Register adds a named undo step. Steps run in reverse registration
// order.
func (cr *CleanupRegistry) Register(name string, fn CleanupFn) {
	if fn == nil {
		return
	}
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.entries = append(cr.entries, cleanupEntry{name: name, fn: fn})
}

// Len returns the number of registered steps.
func (cr *CleanupRegistry) Len() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.entries)
}

// Run executes all registered steps, most recent first, and returns
// the errors of the steps that failed. The registry is emptied.
func (cr *CleanupRegistry) Run(ctx context.Context) []error {
	cr.mu.Lock()
	entries := cr.entries
	cr.entries = nil
	cr.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		cr.log.Debugf("running cleanup step %q", entry.name)
		if err := entry.fn(ctx); err != nil {
			cr.log.Errorf("cleanup step %q failed: %s", entry.name, err)
			errs = append(errs, errors.Wrapf(err, "cleanup %q", entry.name))
		}
	}
	return errs
}
