//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package cluster defines the types and service interfaces through
// which the harness observes and manipulates the system under test.
// All cluster internals (rebuild protocol, WAL, checkpointing) are
// opaque; the harness only sees the state reported by these services.
package cluster

import (
	"strings"

	"github.com/pkg/errors"
)

type (
	// RebuildState indicates the current state of the pool rebuild process.
	RebuildState int32

	// RebuildStatus contains detailed information about the pool rebuild
	// process.
	RebuildStatus struct {
		Status  int32        `json:"status"`
		State   RebuildState `json:"state"`
		Objects uint64       `json:"objects"`
		Records uint64       `json:"records"`
	}

	// StorageUsage represents storage usage statistics for a single
	// storage tier.
	StorageUsage struct {
		Total uint64 `json:"total"`
		Free  uint64 `json:"free"`
	}

	// PoolInfo contains information about a pool as reported by the
	// management service.
	PoolInfo struct {
		UUID            string         `json:"uuid"`
		TotalTargets    uint32         `json:"total_targets"`
		ActiveTargets   uint32         `json:"active_targets"`
		TotalEngines    uint32         `json:"total_engines"`
		DisabledTargets uint32         `json:"disabled_targets"`
		Version         uint32         `json:"version"`
		Leader          uint32         `json:"leader"`
		Rebuild         *RebuildStatus `json:"rebuild"`
		Scm             *StorageUsage  `json:"scm"`
		Nvme            *StorageUsage  `json:"nvme"`
	}

	// PropEntry represents a single pool or container property.
	PropEntry struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	// StorageMedia identifies the storage tier a workload is sized
	// against.
	StorageMedia int

	// Device describes a storage device attached to an engine.
	Device struct {
		UUID     string `json:"uuid"`
		TrAddr   string `json:"tr_addr"`
		Host     string `json:"host"`
		HasSysXS bool   `json:"has_sys_xs"`
	}
)

const (
	// RebuildStateIdle indicates that the rebuild process is idle.
	RebuildStateIdle RebuildState = iota
	// RebuildStateDone indicates that the rebuild process has completed.
	RebuildStateDone
	// RebuildStateBusy indicates that the rebuild process is in progress.
	RebuildStateBusy
)

func (rs RebuildState) String() string {
	switch rs {
	case RebuildStateIdle:
		return "idle"
	case RebuildStateDone:
		return "done"
	case RebuildStateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

const (
	// MediaScm selects the SCM storage tier.
	MediaScm StorageMedia = iota
	// MediaNvme selects the NVMe storage tier.
	MediaNvme
)

func (sm StorageMedia) String() string {
	switch sm {
	case MediaScm:
		return "scm"
	case MediaNvme:
		return "nvme"
	default:
		return "unknown"
	}
}

// ParseStorageMedia returns a StorageMedia value for the given string.
func ParseStorageMedia(in string) (StorageMedia, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "scm":
		return MediaScm, nil
	case "nvme":
		return MediaNvme, nil
	default:
		return MediaScm, errors.Errorf("invalid storage media %q", in)
	}
}

// FreeSpace returns the free capacity of the given storage tier.
func (pi *PoolInfo) FreeSpace(media StorageMedia) uint64 {
	usage := pi.Scm
	if media == MediaNvme {
		usage = pi.Nvme
	}
	if usage == nil {
		return 0
	}
	return usage.Free
}

// RebuildState returns the pool's rebuild state, or idle if no
// rebuild status was reported.
func (pi *PoolInfo) RebuildState() RebuildState {
	if pi.Rebuild == nil {
		return RebuildStateIdle
	}
	return pi.Rebuild.State
}
