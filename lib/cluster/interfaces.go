//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package cluster

import (
	"context"

	"github.com/daos-stack/rift/lib/ranklist"
)

type (
	// SystemService controls engine processes within the system
	// under test.
	SystemService interface {
		// StopRanks stops the given ranks, optionally forcefully,
		// without waiting for any resulting rebuild.
		StopRanks(ctx context.Context, ranks []ranklist.Rank, force bool) error
		// StartRanks (re)starts the given ranks.
		StartRanks(ctx context.Context, ranks []ranklist.Rank) error
		// QueryRankStates reports the current membership state of the
		// given ranks, or of all ranks if none are specified.
		QueryRankStates(ctx context.Context, ranks []ranklist.Rank) (map[ranklist.Rank]MemberState, error)
		// AllRanks returns every rank known to the system.
		AllRanks(ctx context.Context) ([]ranklist.Rank, error)
		// RankHosts maps each rank to the host it runs on.
		RankHosts(ctx context.Context) (map[ranklist.Rank]string, error)
	}

	// PoolCreateReq contains the parameters for a pool create request.
	PoolCreateReq struct {
		Label     string
		ScmBytes  uint64
		NvmeBytes uint64
	}

	// PoolService provides pool-level management operations.
	PoolService interface {
		// Create creates a pool and returns its identifier.
		Create(ctx context.Context, req *PoolCreateReq) (string, error)
		// Destroy destroys the given pool.
		Destroy(ctx context.Context, poolID string) error
		// Query reports current pool information, including rebuild
		// status.
		Query(ctx context.Context, poolID string) (*PoolInfo, error)
		// ExcludeTargets removes the given target indices on a rank
		// from the pool membership.
		ExcludeTargets(ctx context.Context, poolID string, rank ranklist.Rank, targets []uint32) error
		// SetProp sets a pool property.
		SetProp(ctx context.Context, poolID, name, value string) error
		// GetProp returns pool properties; all properties are
		// returned if no names are given.
		GetProp(ctx context.Context, poolID string, names ...string) ([]PropEntry, error)
	}

	// Container provides operations on a single container within
	// a pool. Implementations proxy an externally-managed container;
	// the harness never interprets object data itself.
	Container interface {
		// ID returns the container identifier.
		ID() string
		// PoolID returns the identifier of the containing pool.
		PoolID() string
		// Create creates the container.
		Create(ctx context.Context) error
		// Destroy destroys the container.
		Destroy(ctx context.Context) error
		// WriteObjects writes a set of test objects targeted at the
		// given rank using the given object class.
		WriteObjects(ctx context.Context, rank ranklist.Rank, objClass string) error
		// ReadObjects reads back all previously written objects and
		// verifies their contents.
		ReadObjects(ctx context.Context) error
		// ObjectsOnRank reports how many of the container's objects
		// have a shard located on the given rank.
		ObjectsOnRank(ctx context.Context, rank ranklist.Rank) (int, error)
		// SetProp sets a container property.
		SetProp(ctx context.Context, name, value string) error
		// GetProp returns container properties; all properties are
		// returned if no names are given.
		GetProp(ctx context.Context, names ...string) ([]PropEntry, error)
		// CreateSnap creates a snapshot and returns its epoch.
		CreateSnap(ctx context.Context) (uint64, error)
		// DestroySnap destroys the snapshot with the given epoch.
		DestroySnap(ctx context.Context, epoch uint64) error
		// ListSnaps returns the epochs of all container snapshots.
		ListSnaps(ctx context.Context) ([]uint64, error)
		// Refresh re-reads container state from the cluster.
		Refresh(ctx context.Context) error
	}

	// StorageService provides storage device management operations.
	StorageService interface {
		// DeviceUUIDs enumerates the storage devices on each of the
		// given hosts, or on all hosts if none are specified.
		DeviceUUIDs(ctx context.Context, hosts ...string) (map[string][]Device, error)
		// SetFaulty marks the given device as faulty. Marking a
		// device which hosts system metadata is expected to fail.
		SetFaulty(ctx context.Context, host, uuid string) error
		// LedIdentify drives the device identification LED; with
		// reset, it also clears a previous faulty designation.
		LedIdentify(ctx context.Context, host, uuid string, reset bool) error
		// AvailableStorage reports the usable SCM and NVMe capacity
		// for pool creation.
		AvailableStorage(ctx context.Context) (scmBytes, nvmeBytes uint64, err error)
	}

	// BenchParams contains the parameters for a single I/O benchmark
	// tool invocation.
	BenchParams struct {
		PoolID       string
		ContID       string
		Flags        []string
		ObjectClass  string
		BlockSize    uint64
		TransferSize uint64
		Processes    int
		TestFile     string
		LogFile      string
	}

	// BenchResult contains the parsed output of an I/O benchmark
	// tool invocation.
	BenchResult struct {
		Stdout    string
		WriteMiBs float64
		ReadMiBs  float64
	}

	// BenchRunner invokes an external I/O benchmark tool against a
	// container.
	BenchRunner interface {
		Run(ctx context.Context, params *BenchParams) (*BenchResult, error)
	}

	// Mounter manages a user-space filesystem view of a container.
	Mounter interface {
		// Start mounts the filesystem.
		Start(ctx context.Context) error
		// Stop unmounts the filesystem.
		Stop(ctx context.Context) error
		// Path returns the mount point.
		Path() string
	}
)
