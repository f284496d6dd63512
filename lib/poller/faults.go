//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package poller

import (
	"fmt"
	"time"

	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/fault/code"
)

// FaultTimedOut indicates that a poll's wall-clock deadline elapsed
// before the awaited condition held.
func FaultTimedOut(name string, elapsed time.Duration) *fault.Fault {
	return pollerFault(
		code.PollerTimedOut,
		fmt.Sprintf("%s did not converge within %s", name, elapsed),
		"check that the system under test is making progress and increase the timeout if necessary",
	)
}

// FaultExhausted indicates that a poll's attempt bound was reached
// before the awaited condition held.
func FaultExhausted(name string, attempts uint) *fault.Fault {
	return pollerFault(
		code.PollerExhausted,
		fmt.Sprintf("%s did not converge within %d attempts", name, attempts),
		"check that the system under test is making progress and increase the attempt bound if necessary",
	)
}

// FaultFromResult converts a non-converged poll result into the
// corresponding fault. A converged result yields nil.
func FaultFromResult(name string, result *Result) error {
	if result == nil {
		return pollerFault(code.PollerUnknown, "nil poll result", "")
	}
	switch result.Outcome {
	case OutcomeConverged:
		return nil
	case OutcomeTimedOut:
		return FaultTimedOut(name, result.Elapsed)
	case OutcomeExhausted:
		return FaultExhausted(name, result.Attempts)
	default:
		return pollerFault(code.PollerUnknown,
			fmt.Sprintf("unexpected poll outcome %d", result.Outcome), "")
	}
}

func pollerFault(fc code.Code, desc, res string) *fault.Fault {
	return &fault.Fault{
		Domain:      "poller",
		Code:        fc,
		Description: desc,
		Resolution:  res,
	}
}
