//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package loadgen

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	redundancyRe = regexp.MustCompile(`_(.+?)G`)
	numberRe     = regexp.MustCompile(`\d+`)
)

// ObjectClass describes the redundancy layout of an object class,
// parsed from its name (e.g. "SX", "RP_2GX", "EC_4P1GX").
type ObjectClass struct {
	Name     string
	Data     int
	Parity   int
	Replicas int
}

// IsEC indicates whether the class is erasure-coded.
func (oc *ObjectClass) IsEC() bool {
	return oc != nil && oc.Parity > 0
}

// IsReplicated indicates whether the class is replicated.
func (oc *ObjectClass) IsReplicated() bool {
	return oc != nil && oc.Replicas > 1
}

// AdjustForRedundancy scales a payload size so that the total bytes
// written, including redundancy overhead, stay within the original
// size. For an erasure-coded class with d data and p parity cells,
// writing d/(d+p) of the size fills the remaining p/(d+p) with
// parity; for an n-way replicated class each byte is written n
// times; other classes carry no overhead.
func (oc *ObjectClass) AdjustForRedundancy(size uint64) uint64 {
	switch {
	case oc.IsEC():
		return size / uint64(oc.Data+oc.Parity) * uint64(oc.Data)
	case oc.IsReplicated():
		return size / uint64(oc.Replicas)
	default:
		return size
	}
}

// ParseObjectClass parses the redundancy layout from an object class
// name.
func ParseObjectClass(name string) (*ObjectClass, error) {
	oc := &ObjectClass{Name: name, Replicas: 1}

	match := redundancyRe.FindStringSubmatch(name)
	if match == nil {
		// No redundancy group (e.g. S1, SX).
		return oc, nil
	}

	group := match[1]
	numbers := numberRe.FindAllString(group, -1)

	if strings.Contains(group, "P") {
		if len(numbers) != 2 {
			return nil, FaultBadObjectClass(name)
		}
		data, err := strconv.Atoi(numbers[0])
		if err != nil || data < 1 {
			return nil, FaultBadObjectClass(name)
		}
		parity, err := strconv.Atoi(numbers[1])
		if err != nil || parity < 1 {
			return nil, FaultBadObjectClass(name)
		}
		oc.Data = data
		oc.Parity = parity
		return oc, nil
	}

	if len(numbers) != 1 {
		return nil, FaultBadObjectClass(name)
	}
	replicas, err := strconv.Atoi(numbers[0])
	if err != nil || replicas < 1 {
		return nil, FaultBadObjectClass(name)
	}
	oc.Replicas = replicas

	return oc, nil
}
