//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package loadgen drives an external I/O benchmark tool to fill
// pools to a target utilization and to verify data after cluster
// fault events.
package loadgen

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/cluster"
	"github.com/daos-stack/rift/logging"
)

// Mode selects the workload direction and how the block size is
// determined.
type Mode int

const (
	// ModeWrite writes with an explicitly configured block size.
	ModeWrite Mode = iota
	// ModeRead reads back previously written data.
	ModeRead
	// ModeWriteRead writes and then reads back in one invocation.
	ModeWriteRead
	// ModeAutoWrite writes with a block size derived from current
	// free space and a fill percentage.
	ModeAutoWrite
	// ModeAutoRead reads back with the derived block size.
	ModeAutoRead
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeRead:
		return "read"
	case ModeWriteRead:
		return "writeread"
	case ModeAutoWrite:
		return "autowrite"
	case ModeAutoRead:
		return "autoread"
	default:
		return "unknown"
	}
}

// IsAuto indicates whether the block size is derived from free space.
func (m Mode) IsAuto() bool {
	return m == ModeAutoWrite || m == ModeAutoRead
}

// IsRead indicates whether the workload only reads.
func (m Mode) IsRead() bool {
	return m == ModeRead || m == ModeAutoRead
}

// ParseMode parses a workload mode name. Case, dashes and
// underscores are ignored.
func ParseMode(name string) (Mode, error) {
	norm := strings.ToLower(name)
	norm = strings.NewReplacer("-", "", "_", "").Replace(norm)
	switch norm {
	case "write":
		return ModeWrite, nil
	case "read":
		return ModeRead, nil
	case "writeread":
		return ModeWriteRead, nil
	case "autowrite":
		return ModeAutoWrite, nil
	case "autoread":
		return ModeAutoRead, nil
	default:
		return ModeWrite, errors.Errorf("unknown workload mode %q", name)
	}
}

// Workload describes one benchmark invocation.
type Workload struct {
	Mode            Mode
	Media           cluster.StorageMedia
	ObjectClass     string
	FillPercent     int
	BlockSize       uint64
	TransferSize    uint64
	Processes       int
	CreateContainer bool
	FailOnWarning   bool
	LogFile         string
}

const (
	// DefaultScmTransferSize is the transfer size used against SCM
	// when none is configured.
	DefaultScmTransferSize = 2048
	// DefaultNvmeTransferSize is the transfer size used against NVMe
	// when none is configured.
	DefaultNvmeTransferSize = 16777216

	defaultTestFile = "/testfile"
)

var (
	writeFlags = []string{"-w", "-W", "-k", "-G", "1"}
	readFlags  = []string{"-r", "-R", "-k", "-G", "1"}
)

// Generator runs workloads against containers via an external
// benchmark tool.
type Generator struct {
	log   logging.Logger
	pool  cluster.PoolService
	bench cluster.BenchRunner

	// TestFile is the path written within the container namespace.
	TestFile string
}

// New returns a Generator using the given pool service and benchmark
// runner.
func New(log logging.Logger, pool cluster.PoolService, bench cluster.BenchRunner) *Generator {
	return &Generator{
		log:      log,
		pool:     pool,
		bench:    bench,
		TestFile: defaultTestFile,
	}
}

// CalcBlockSize derives a per-process block size which fills the
// given fraction of the free space, accounting for the redundancy
// overhead of the object class and rounding down to a multiple of
// the transfer size.
func CalcBlockSize(free uint64, percent int, oc *ObjectClass, processes int, xfer uint64) uint64 {
	if processes < 1 {
		processes = 1
	}
	size := free / 100 * uint64(percent)
	size = oc.AdjustForRedundancy(size)
	size /= uint64(processes)
	return size / xfer * xfer
}

// Run executes the workload against the given container and returns
// the benchmark result. For auto modes the block size is derived
// from the pool's current free space before the tool is invoked.
func (g *Generator) Run(ctx context.Context, cont cluster.Container, w *Workload) (*cluster.BenchResult, error) {
	if cont == nil {
		return nil, FaultMissingContainer("")
	}
	if w == nil {
		return nil, errors.New("nil workload")
	}

	processes := w.Processes
	if processes < 1 {
		processes = 1
	}

	xfer := w.TransferSize
	if xfer == 0 {
		switch w.Media {
		case cluster.MediaScm:
			xfer = DefaultScmTransferSize
		default:
			xfer = DefaultNvmeTransferSize
		}
	}

	blockSize := w.BlockSize
	if w.Mode.IsAuto() {
		if w.FillPercent < 1 || w.FillPercent > 100 {
			return nil, FaultBadFillPercent(w.FillPercent)
		}
		oc, err := ParseObjectClass(w.ObjectClass)
		if err != nil {
			return nil, err
		}

		info, err := g.pool.Query(ctx, cont.PoolID())
		if err != nil {
			return nil, errors.Wrapf(err, "query pool %s", cont.PoolID())
		}
		free := info.FreeSpace(w.Media)

		blockSize = CalcBlockSize(free, w.FillPercent, oc, processes, xfer)
		g.log.Debugf("derived block size %d from %d free %s bytes (%d%% fill, class %s, %d procs)",
			blockSize, free, w.Media, w.FillPercent, w.ObjectClass, processes)
	}
	if blockSize == 0 {
		return nil, errors.Errorf("derived block size is zero (transfer size %d)", xfer)
	}

	flags := writeFlags
	if w.Mode.IsRead() {
		flags = readFlags
	}

	if w.CreateContainer && !w.Mode.IsRead() {
		if err := cont.Create(ctx); err != nil {
			return nil, errors.Wrapf(err, "create container %s", cont.ID())
		}
	}

	res, err := g.bench.Run(ctx, &cluster.BenchParams{
		PoolID:       cont.PoolID(),
		ContID:       cont.ID(),
		Flags:        flags,
		ObjectClass:  w.ObjectClass,
		BlockSize:    blockSize,
		TransferSize: xfer,
		Processes:    processes,
		TestFile:     g.TestFile,
		LogFile:      w.LogFile,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s workload on container %s", w.Mode, cont.ID())
	}

	if w.FailOnWarning {
		for _, line := range strings.Split(res.Stdout, "\n") {
			if strings.Contains(line, "WARNING") {
				return nil, FaultToolWarning(strings.TrimSpace(line))
			}
		}
	}

	g.log.Infof("%s workload on container %s done (write %.2f MiB/s, read %.2f MiB/s)",
		w.Mode, cont.ID(), res.WriteMiBs, res.ReadMiBs)

	return res, nil
}
