//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package ranklist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/daos-stack/rift/common/test"
)

func TestRanklist_ParseRanks(t *testing.T) {
	for name, tc := range map[string]struct {
		input    string
		expRanks []Rank
		expErr   error
	}{
		"empty": {
			input: "",
		},
		"single rank": {
			input:    "5",
			expRanks: []Rank{5},
		},
		"comma separated": {
			input:    "2,0,1",
			expRanks: []Rank{0, 1, 2},
		},
		"range": {
			input:    "0-3",
			expRanks: []Rank{0, 1, 2, 3},
		},
		"range and list": {
			input:    "0-2,5",
			expRanks: []Rank{0, 1, 2, 5},
		},
		"duplicates removed": {
			input:    "1,1,0-1",
			expRanks: []Rank{0, 1},
		},
		"inverted range": {
			input:  "3-0",
			expErr: errors.New("invalid rank range"),
		},
		"garbage": {
			input:  "banana",
			expErr: errors.New("unable to parse"),
		},
	} {
		t.Run(name, func(t *testing.T) {
			gotRanks, gotErr := ParseRanks(tc.input)
			test.CmpErr(t, tc.expErr, gotErr)
			if tc.expErr != nil {
				return
			}

			if diff := cmp.Diff(tc.expRanks, gotRanks, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("unexpected ranks (-want, +got):\n%s\n", diff)
			}
		})
	}
}

func TestRanklist_CheckRankMembership(t *testing.T) {
	for name, tc := range map[string]struct {
		members    []Rank
		toTest     []Rank
		expMissing []Rank
	}{
		"all members": {
			members: []Rank{0, 1, 2},
			toTest:  []Rank{0, 2},
		},
		"missing member": {
			members:    []Rank{0, 1, 2},
			toTest:     []Rank{3},
			expMissing: []Rank{3},
		},
		"empty members": {
			toTest:     []Rank{0},
			expMissing: []Rank{0},
		},
	} {
		t.Run(name, func(t *testing.T) {
			gotMissing := CheckRankMembership(tc.members, tc.toTest)
			test.AssertEqual(t, tc.expMissing, gotMissing, "unexpected missing ranks")
		})
	}
}

func TestRanklist_RankInList(t *testing.T) {
	r := Rank(2)
	test.AssertTrue(t, r.InList([]Rank{0, 1, 2}), "expected rank in list")
	test.AssertFalse(t, r.InList([]Rank{0, 1}), "expected rank not in list")
}
