//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package loadgen

import (
	"fmt"

	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/fault/code"
)

// FaultBadObjectClass indicates an object class name whose redundancy
// layout could not be parsed.
func FaultBadObjectClass(name string) *fault.Fault {
	return loadgenFault(
		code.LoadGenBadObjectClass,
		fmt.Sprintf("unable to parse redundancy layout from object class %q", name),
		"supply a supported object class (e.g. SX, RP_2GX, EC_4P1GX)",
	)
}

// FaultBadFillPercent indicates a fill percentage outside (0, 100].
func FaultBadFillPercent(percent int) *fault.Fault {
	return loadgenFault(
		code.LoadGenBadFillPercent,
		fmt.Sprintf("fill percentage %d is not in (0, 100]", percent),
		"supply a fill percentage between 1 and 100",
	)
}

// FaultMissingContainer indicates a read workload run against a
// container which was never populated.
func FaultMissingContainer(contID string) *fault.Fault {
	return loadgenFault(
		code.LoadGenMissingContainer,
		fmt.Sprintf("container %q does not exist or was never written", contID),
		"run a write workload against the container before reading it back",
	)
}

// FaultToolWarning indicates that the benchmark tool completed but
// emitted a warning which the workload treats as a failure.
func FaultToolWarning(line string) *fault.Fault {
	return loadgenFault(
		code.LoadGenToolWarning,
		fmt.Sprintf("benchmark tool warning: %s", line),
		"inspect the tool log for the warning's cause",
	)
}

func loadgenFault(fc code.Code, desc, res string) *fault.Fault {
	return &fault.Fault{
		Domain:      "loadgen",
		Code:        fc,
		Description: desc,
		Resolution:  res,
	}
}
