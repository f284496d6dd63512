//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package build provides an importable repository of variables set at build time.
package build

var (
	// Version should be set via linker flag using the value of RIFT_VERSION.
	Version string = "unset"
	// ToolName defines a consistent name for the harness CLI.
	ToolName = "rift"

	// DefaultSystemName defines the default system name targeted by
	// harness scenarios.
	DefaultSystemName = "daos_server"
	// DefaultTelemetryPort defines the default port for the metrics
	// exporter.
	DefaultTelemetryPort = 9192
)

// String returns a string containing the name and version of the tool.
func String(name string) string {
	return name + " version " + Version
}
