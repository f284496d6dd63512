//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package test provides utility functions for unit tests.
package test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// AssertTrue asserts b is true.
func AssertTrue(t *testing.T, b bool, message string) {
	t.Helper()

	if !b {
		t.Fatal(message)
	}
}

// AssertFalse asserts b is false.
func AssertFalse(t *testing.T, b bool, message string) {
	t.Helper()

	if b {
		t.Fatal(message)
	}
}

// AssertEqual asserts b is equal to a.
func AssertEqual(t *testing.T, a, b interface{}, message string) {
	t.Helper()

	if diff := cmp.Diff(a, b); diff != "" {
		if len(message) > 0 {
			message += ", "
		}
		t.Fatalf("%sunexpected value (-want, +got):\n%s\n", message, diff)
	}
}

// CmpErr compares two errors for equality, or at least close
// enough equality (i.e. that the actual error contains the
// expected error's message).
func CmpErr(t *testing.T, want, got error) {
	t.Helper()

	if want == got {
		return
	}
	if want == nil || got == nil {
		t.Fatalf("unexpected error (wanted: %v, got: %v)", want, got)
	}
	if !strings.Contains(got.Error(), want.Error()) {
		t.Fatalf("unexpected error (wanted: %s, got: %s)", want, got)
	}
}

// MockUUID returns a mock UUID for testing. The optional index
// argument will be used to vary the first segment of the UUID.
func MockUUID(varyIdx ...int32) string {
	idx := int32(0)
	if len(varyIdx) > 0 {
		idx = varyIdx[0]
	}
	idxStr := fmt.Sprintf("%08d", idx)

	return fmt.Sprintf("%s-%04d-%04d-%04d-%012d", idxStr, idx, idx, idx, idx)
}

// ShowBufferOnFailure displays captured log output for failed tests.
func ShowBufferOnFailure(t *testing.T, buf fmt.Stringer) {
	t.Helper()

	if t.Failed() {
		fmt.Printf("captured log output:\n%s", buf.String())
	}
	if flusher, ok := buf.(interface{ Reset() }); ok {
		flusher.Reset()
	}
}

// Context returns a context which is canceled when the test
// is finished.
func Context(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
