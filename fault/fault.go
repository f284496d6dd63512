//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package fault provides an API for well-known errors which
// carry a stable code and an optional resolution.
package fault

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/fault/code"
)

const (
	// ResolutionUnknown indicates that there is no known
	// resolution for the fault.
	ResolutionUnknown = "no known resolution"
	// ResolutionNone indicates that the fault cannot be
	// resolved.
	ResolutionNone = "none"

	// UnknownDomainStr is the default domain of an unclassified fault.
	UnknownDomainStr = "unknown"
	// UnknownDescriptionStr is the default description of an
	// unclassified fault.
	UnknownDescriptionStr = "unknown fault"
)

// UnknownFault represents an unknown fault.
var UnknownFault = &Fault{
	Code:       code.Unknown,
	Resolution: ResolutionUnknown,
}

// Fault represents a well-known error specific to a domain,
// along with an optional potential resolution for the error.
//
// It implements the error interface and can be used
// interchangeably with regular "dumb" errors.
type Fault struct {
	Domain      string    `json:"domain"`
	Code        code.Code `json:"code"`
	Description string    `json:"description"`
	Reason      string    `json:"reason,omitempty"`
	Resolution  string    `json:"resolution,omitempty"`
}

func sanitizeDomain(inDomain string) (outDomain string) {
	outDomain = UnknownDomainStr
	if inDomain != "" {
		// sanitize the domain to ensure grep friendliness
		outDomain = strings.Join(
			strings.Fields(
				strings.Replace(inDomain, ":", " ", -1),
			), "_")
	}
	return
}

func sanitizeDescription(inDescription string) (outDescription string) {
	outDescription = UnknownDescriptionStr
	if inDescription != "" {
		outDescription = inDescription
	}
	return
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: code = %d description = %q",
		sanitizeDomain(f.Domain), f.Code, sanitizeDescription(f.Description))
}

// Equals attempts to compare the given error to this one. If they both
// resolve to the same fault code, then they are considered equivalent.
func (f *Fault) Equals(raw error) bool {
	other, ok := errors.Cause(raw).(*Fault)
	if !ok {
		return false
	}
	return f.Code == other.Code
}

// HasCode returns true if the given error is a fault with the
// given code.
func HasCode(raw error, fc code.Code) bool {
	f, ok := errors.Cause(raw).(*Fault)
	return ok && f.Code == fc
}

// IsFault returns true if the given error is a fault.
func IsFault(raw error) bool {
	_, ok := errors.Cause(raw).(*Fault)
	return ok
}

// ShowResolutionFor attempts to return the resolution string for the
// given error. If the error is not a fault or does not have a
// resolution set, then the string value of ResolutionUnknown
// is returned.
func ShowResolutionFor(raw error) string {
	fmtStr := "%s: code = %d resolution = %q"

	f, ok := errors.Cause(raw).(*Fault)
	if !ok {
		return fmt.Sprintf(fmtStr, UnknownDomainStr, code.Unknown, ResolutionUnknown)
	}
	if f.Resolution == "" {
		return fmt.Sprintf(fmtStr, sanitizeDomain(f.Domain), f.Code, ResolutionUnknown)
	}
	return fmt.Sprintf(fmtStr, sanitizeDomain(f.Domain), f.Code, f.Resolution)
}

// HasResolution indicates whether or not the error has a resolution
// defined.
func HasResolution(raw error) bool {
	f, ok := errors.Cause(raw).(*Fault)
	if !ok || f.Resolution == "" {
		return false
	}
	return true
}
