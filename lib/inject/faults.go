//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package inject

import (
	"fmt"

	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/fault/code"
	"github.com/daos-stack/rift/lib/ranklist"
)

// FaultUnexpectedSuccess indicates that marking a device faulty
// succeeded where the device's role requires the request to be
// rejected.
func FaultUnexpectedSuccess(host, uuid string) *fault.Fault {
	return injectFault(
		code.InjectUnexpectedSuccess,
		fmt.Sprintf("marking device %s on host %s faulty succeeded; the device hosts system metadata and the request must be rejected", uuid, host),
		"verify that the device role detection on the server is working",
	)
}

// FaultDuplicateRank indicates that a rank was named by more than one
// fault action in the same campaign.
func FaultDuplicateRank(rank ranklist.Rank) *fault.Fault {
	return injectFault(
		code.InjectDuplicateRank,
		fmt.Sprintf("rank %d is targeted by more than one fault action", rank),
		"target each rank with at most one fault action per campaign",
	)
}

func injectFault(fc code.Code, desc, res string) *fault.Fault {
	return &fault.Fault{
		Domain:      "inject",
		Code:        fc,
		Description: desc,
		Resolution:  res,
	}
}
