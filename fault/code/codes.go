//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package code is a central repository for all harness fault codes.
package code

import (
	"encoding/json"
	"strconv"
)

// Code represents a stable fault code.
//
// NB: All harness errors should register their codes in the
// following block in order to avoid conflicts.
//
// Also note that new codes should always be added at the bottom of
// their respective blocks. This ensures stability of fault codes
// over time.
type Code int

// UnmarshalJSON implements a custom unmarshaler
// to convert an int or string code to a Code.
func (c *Code) UnmarshalJSON(data []byte) (err error) {
	var ic int
	if err = json.Unmarshal(data, &ic); err == nil {
		*c = Code(ic)
		return
	}

	var sc string
	if err = json.Unmarshal(data, &sc); err != nil {
		return
	}

	if ic, err = strconv.Atoi(sc); err == nil {
		*c = Code(ic)
	}
	return
}

const (
	// general fault codes
	Unknown Code = iota
	Precondition
	ExternalCommand
	Postcondition
	DataIntegrity
)

const (
	// convergence poller fault codes
	PollerUnknown Code = iota + 100
	PollerTimedOut
	PollerExhausted
)

const (
	// fault injection fault codes
	InjectUnknown Code = iota + 200
	InjectUnexpectedSuccess
	InjectDuplicateRank
)

const (
	// load generation fault codes
	LoadGenUnknown Code = iota + 300
	LoadGenBadObjectClass
	LoadGenBadFillPercent
	LoadGenMissingContainer
	LoadGenToolWarning
)

const (
	// rebuild lifecycle fault codes
	RebuildUnknown Code = iota + 400
	RebuildBadPhase
	RebuildBaselineMismatch
	RebuildPostMismatch
	RebuildDisabledRegression
)

const (
	// scenario configuration fault codes
	ScenarioUnknown Code = iota + 500
	ScenarioBadConfig
	ScenarioBadWorkloadMode
	ScenarioBadStorageClass
)
