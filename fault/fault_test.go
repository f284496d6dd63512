//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package fault_test

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/fault"
	"github.com/daos-stack/rift/fault/code"
)

func TestFaults(t *testing.T) {
	for _, tc := range []struct {
		name        string
		testErr     error
		expFaultStr string
		expFaultRes string
		expNotFault bool
	}{
		{
			name:        "nil error",
			testErr:     nil,
			expFaultRes: "unknown: code = 0 resolution = \"no known resolution\"",
		},
		{
			name:        "normal error",
			testErr:     fmt.Errorf("not a fault"),
			expFaultStr: "not a fault",
			expNotFault: true,
			expFaultRes: "unknown: code = 0 resolution = \"no known resolution\"",
		},
		{
			name:        "empty fault",
			testErr:     &fault.Fault{},
			expFaultStr: fault.UnknownFault.Error(),
			expFaultRes: "unknown: code = 0 resolution = \"no known resolution\"",
		},
		{
			name: "fault without domain",
			testErr: &fault.Fault{
				Code:        123,
				Description: "the world is on fire",
				Resolution:  "go jump in the lake",
			},
			expFaultStr: "unknown: code = 123 description = \"the world is on fire\"",
			expFaultRes: "unknown: code = 123 resolution = \"go jump in the lake\"",
		},
		{
			name: "wrapped fault",
			testErr: errors.Wrap(&fault.Fault{
				Domain:      "test",
				Code:        123,
				Description: "the world is on fire",
				Resolution:  "go jump in the lake",
			}, "outer context"),
			expFaultStr: "outer context: test: code = 123 description = \"the world is on fire\"",
			expFaultRes: "test: code = 123 resolution = \"go jump in the lake\"",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.testErr != nil {
				if fault.IsFault(tc.testErr) == tc.expNotFault {
					t.Fatalf("expected IsFault(%+v) == %t", tc.testErr, !tc.expNotFault)
				}
				if gotStr := tc.testErr.Error(); gotStr != tc.expFaultStr {
					t.Fatalf("expected %q, got %q", tc.expFaultStr, gotStr)
				}
			}

			if gotRes := fault.ShowResolutionFor(tc.testErr); gotRes != tc.expFaultRes {
				t.Fatalf("expected %q, got %q", tc.expFaultRes, gotRes)
			}
		})
	}
}

func TestFault_HasCode(t *testing.T) {
	testFault := &fault.Fault{
		Domain:      "test",
		Code:        code.PollerTimedOut,
		Description: "timed out",
	}

	if !fault.HasCode(testFault, code.PollerTimedOut) {
		t.Fatal("expected HasCode to match raw fault")
	}
	if !fault.HasCode(errors.Wrap(testFault, "outer"), code.PollerTimedOut) {
		t.Fatal("expected HasCode to match wrapped fault")
	}
	if fault.HasCode(testFault, code.PollerExhausted) {
		t.Fatal("expected HasCode to reject mismatched code")
	}
	if fault.HasCode(errors.New("not a fault"), code.PollerTimedOut) {
		t.Fatal("expected HasCode to reject non-fault")
	}
}
