//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package ranklist provides types and convenience methods for
// working with storage engine ranks.
package ranklist

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxRank is the largest valid Rank value.
	MaxRank Rank = NilRank - 1
	// NilRank is an undefined Rank (0xffffffff).
	NilRank Rank = 0xffffffff
)

// Rank is a serial identifier for a server engine within the system.
type Rank uint32

func (r *Rank) String() string {
	switch {
	case r == nil:
		return "NilRank"
	case r.Equals(NilRank):
		return "NilRank"
	default:
		return strconv.FormatUint(uint64(*r), 10)
	}
}

// Uint32 returns a uint32 representation of the Rank.
func (r *Rank) Uint32() uint32 {
	if r == nil {
		return uint32(NilRank)
	}
	return uint32(*r)
}

// Equals compares this Rank to the given Rank.
func (r *Rank) Equals(other Rank) bool {
	if r == nil {
		return other.Equals(NilRank)
	}
	return *r == other
}

// InList checks whether this Rank is present in the given list of Ranks.
func (r *Rank) InList(ranks []Rank) bool {
	for _, rank := range ranks {
		if r.Equals(rank) {
			return true
		}
	}
	return false
}

// RankList provides convenience methods for working with Rank slices.
type RankList []Rank

func (rl RankList) String() string {
	rs := make([]string, len(rl))
	for i, r := range rl {
		r := r
		rs[i] = r.String()
	}
	return strings.Join(rs, ",")
}

// Dedupe returns a sorted copy of the RankList with any
// duplicate ranks removed.
func (rl RankList) Dedupe() RankList {
	seen := make(map[Rank]struct{})
	out := make(RankList, 0, len(rl))
	for _, r := range rl {
		if _, found := seen[r]; found {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RanksToUint32 is a convenience method to convert this
// slice of ranks to a slice of uint32s.
func RanksToUint32(in []Rank) []uint32 {
	out := make([]uint32, len(in))
	for i := range in {
		out[i] = in[i].Uint32()
	}
	return out
}

// RanksFromUint32 is a convenience method to convert this
// slice of uint32s to a slice of ranks.
func RanksFromUint32(in []uint32) []Rank {
	out := make([]Rank, len(in))
	for i := range in {
		out[i] = Rank(in[i])
	}
	return out
}

// ParseRanks creates a slice of Rank from a string representation
// of a list of ranks, e.g. "0-3,5".
func ParseRanks(stringRanks string) ([]Rank, error) {
	var ranks []Rank

	for _, field := range strings.Split(stringRanks, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		if lo, hi, found := strings.Cut(field, "-"); found {
			first, err := strconv.ParseUint(lo, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to parse %q", field)
			}
			last, err := strconv.ParseUint(hi, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to parse %q", field)
			}
			if last < first {
				return nil, errors.Errorf("invalid rank range %q", field)
			}
			for i := first; i <= last; i++ {
				ranks = append(ranks, Rank(i))
			}
			continue
		}

		value, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse rank %q", field)
		}
		ranks = append(ranks, Rank(value))
	}

	return RankList(ranks).Dedupe(), nil
}

// CheckRankMembership compares two Rank slices and returns a
// slice of Ranks from the second slice that are not in the first.
func CheckRankMembership(members, toTest []Rank) (missing []Rank) {
	mm := make(map[Rank]struct{})
	for _, m := range members {
		mm[m] = struct{}{}
	}

	for _, m := range toTest {
		if _, found := mm[m]; !found {
			missing = append(missing, m)
		}
	}

	return
}
