//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package rebuild

import (
	"fmt"

	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/fault/code"
)

// FaultBadPhase indicates a lifecycle step attempted out of order.
func FaultBadPhase(current, next Phase) *fault.Fault {
	return rebuildFault(
		code.RebuildBadPhase,
		fmt.Sprintf("cannot move from phase %s to %s", current, next),
		"lifecycle phases must be executed in order",
	)
}

// FaultBaselineMismatch indicates that the pool was degraded before
// any failure was induced.
func FaultBaselineMismatch(detail string) *fault.Fault {
	return rebuildFault(
		code.RebuildBaselineMismatch,
		fmt.Sprintf("pool is not healthy before failure injection: %s", detail),
		"ensure the pool is fully healthy before starting the lifecycle",
	)
}

// FaultPostMismatch indicates that the pool state after rebuild does
// not match the configured expectation.
func FaultPostMismatch(detail string) *fault.Fault {
	return rebuildFault(
		code.RebuildPostMismatch,
		fmt.Sprintf("pool state after rebuild does not match expectation: %s", detail),
		"inspect the rebuild logs on the affected engines",
	)
}

// FaultDisabledRegression indicates that the pool's disabled target
// count decreased while a failure was outstanding.
func FaultDisabledRegression(previous, current uint32) *fault.Fault {
	return rebuildFault(
		code.RebuildDisabledRegression,
		fmt.Sprintf("disabled target count regressed from %d to %d", previous, current),
		"disabled targets must not recover while the failure is outstanding",
	)
}

func rebuildFault(fc code.Code, desc, res string) *fault.Fault {
	return &fault.Fault{
		Domain:      "rebuild",
		Code:        fc,
		Description: desc,
		Resolution:  res,
	}
}
