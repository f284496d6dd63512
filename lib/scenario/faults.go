//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package scenario

import (
	"fmt"

	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/fault/code"
)

// FaultBadConfig indicates an invalid scenario configuration.
func FaultBadConfig(detail string) *fault.Fault {
	return scenarioFault(
		code.ScenarioBadConfig,
		fmt.Sprintf("invalid scenario config: %s", detail),
		"fix the scenario config file",
	)
}

// FaultBadWorkloadMode indicates an unknown workload mode name.
func FaultBadWorkloadMode(mode string) *fault.Fault {
	return scenarioFault(
		code.ScenarioBadWorkloadMode,
		fmt.Sprintf("unknown workload mode %q", mode),
		"use one of: write, read, write-read, auto-write, auto-read",
	)
}

// FaultBadStorageClass indicates an unparseable object class name.
func FaultBadStorageClass(class string) *fault.Fault {
	return scenarioFault(
		code.ScenarioBadStorageClass,
		fmt.Sprintf("unsupported object class %q", class),
		"use a supported object class (e.g. SX, RP_2GX, EC_4P1GX)",
	)
}

func scenarioFault(fc code.Code, desc, res string) *fault.Fault {
	return &fault.Fault{
		Domain:      "scenario",
		Code:        fc,
		Description: desc,
		Resolution:  res,
	}
}
