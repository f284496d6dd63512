//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package cluster

import "strings"

// MemberState represents the activity state of system members.
type MemberState int

const (
	// MemberStateUnknown is the default invalid state.
	MemberStateUnknown MemberState = 0x0000
	// MemberStateJoined indicates the member has joined the system.
	MemberStateJoined MemberState = 0x0001
	// MemberStateStopped indicates the member process has been stopped.
	MemberStateStopped MemberState = 0x0002
	// MemberStateExcluded indicates the member has been administratively
	// excluded from the system.
	MemberStateExcluded MemberState = 0x0004
	// MemberStateErrored indicates the member process stopped with errors.
	MemberStateErrored MemberState = 0x0008
)

func (ms MemberState) String() string {
	switch ms {
	case MemberStateJoined:
		return "joined"
	case MemberStateStopped:
		return "stopped"
	case MemberStateExcluded:
		return "excluded"
	case MemberStateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MemberStateFromString returns a MemberState for the given string.
func MemberStateFromString(in string) MemberState {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "joined":
		return MemberStateJoined
	case "stopped":
		return MemberStateStopped
	case "excluded":
		return MemberStateExcluded
	case "errored":
		return MemberStateErrored
	default:
		return MemberStateUnknown
	}
}

// IsOneOf returns true if the state matches any of the given states.
// The filter argument may be a bitwise combination of states.
func (ms MemberState) IsOneOf(filter MemberState) bool {
	return ms&filter != 0
}
