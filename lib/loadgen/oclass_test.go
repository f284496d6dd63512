//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package loadgen

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/daos-stack/rift/common/test"
)

func TestLoadGen_ParseObjectClass(t *testing.T) {
	for name, tc := range map[string]struct {
		class  string
		expOC  *ObjectClass
		expErr error
	}{
		"single shard": {
			class: "S1",
			expOC: &ObjectClass{Name: "S1", Replicas: 1},
		},
		"striped": {
			class: "SX",
			expOC: &ObjectClass{Name: "SX", Replicas: 1},
		},
		"two-way replicated": {
			class: "RP_2GX",
			expOC: &ObjectClass{Name: "RP_2GX", Replicas: 2},
		},
		"three-way replicated": {
			class: "RP_3G1",
			expOC: &ObjectClass{Name: "RP_3G1", Replicas: 3},
		},
		"ec 2+1": {
			class: "EC_2P1GX",
			expOC: &ObjectClass{Name: "EC_2P1GX", Replicas: 1, Data: 2, Parity: 1},
		},
		"ec 4+2": {
			class: "EC_4P2G1",
			expOC: &ObjectClass{Name: "EC_4P2G1", Replicas: 1, Data: 4, Parity: 2},
		},
		"garbled redundancy group": {
			class:  "RP_XGX",
			expErr: FaultBadObjectClass("RP_XGX"),
		},
		"zero replicas": {
			class:  "RP_0GX",
			expErr: FaultBadObjectClass("RP_0GX"),
		},
	} {
		t.Run(name, func(t *testing.T) {
			gotOC, gotErr := ParseObjectClass(tc.class)
			test.CmpErr(t, tc.expErr, gotErr)
			if tc.expErr != nil {
				return
			}
			if diff := cmp.Diff(tc.expOC, gotOC); diff != "" {
				t.Fatalf("unexpected object class (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestLoadGen_AdjustForRedundancy(t *testing.T) {
	for name, tc := range map[string]struct {
		class   string
		size    uint64
		expSize uint64
	}{
		"no redundancy":     {class: "SX", size: 1200, expSize: 1200},
		"two-way replicas":  {class: "RP_2GX", size: 1200, expSize: 600},
		"ec 2+1 keeps 2/3":  {class: "EC_2P1GX", size: 1200, expSize: 800},
		"ec 4+2 keeps 4/6":  {class: "EC_4P2GX", size: 1200, expSize: 800},
		"ec truncates down": {class: "EC_2P1GX", size: 1000, expSize: 666},
	} {
		t.Run(name, func(t *testing.T) {
			oc, err := ParseObjectClass(tc.class)
			if err != nil {
				t.Fatal(err)
			}
			test.AssertEqual(t, tc.expSize, oc.AdjustForRedundancy(tc.size), "unexpected adjusted size")
		})
	}
}
