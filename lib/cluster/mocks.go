//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/ranklist"
)

type (
	// MockSystemConfig configures a MockSystem.
	MockSystemConfig struct {
		StopErr   error
		StartErr  error
		QueryErr  error
		Ranks     []ranklist.Rank
		Hosts     map[ranklist.Rank]string
		StateSets []map[ranklist.Rank]MemberState
	}

	// StopCall records a single StopRanks invocation.
	StopCall struct {
		Ranks []ranklist.Rank
		Force bool
	}

	// MockSystem implements the SystemService interface from
	// scripted responses.
	MockSystem struct {
		sync.Mutex
		cfg        MockSystemConfig
		queryCount int

		StopCalls  []StopCall
		StartCalls [][]ranklist.Rank
	}
)

// NewMockSystem returns a MockSystem configured with the given config.
func NewMockSystem(cfg *MockSystemConfig) *MockSystem {
	if cfg == nil {
		cfg = &MockSystemConfig{}
	}
	return &MockSystem{cfg: *cfg}
}

func (ms *MockSystem) StopRanks(_ context.Context, ranks []ranklist.Rank, force bool) error {
	ms.Lock()
	defer ms.Unlock()
	ms.StopCalls = append(ms.StopCalls, StopCall{Ranks: ranks, Force: force})
	return ms.cfg.StopErr
}

// StopCount returns the number of StopRanks invocations made so far.
func (ms *MockSystem) StopCount() int {
	ms.Lock()
	defer ms.Unlock()
	return len(ms.StopCalls)
}

func (ms *MockSystem) StartRanks(_ context.Context, ranks []ranklist.Rank) error {
	ms.Lock()
	defer ms.Unlock()
	ms.StartCalls = append(ms.StartCalls, ranks)
	return ms.cfg.StartErr
}

func (ms *MockSystem) QueryRankStates(_ context.Context, ranks []ranklist.Rank) (map[ranklist.Rank]MemberState, error) {
	ms.Lock()
	defer ms.Unlock()

	if ms.cfg.QueryErr != nil {
		return nil, ms.cfg.QueryErr
	}
	if len(ms.cfg.StateSets) == 0 {
		return nil, errors.New("no scripted rank states")
	}

	// Step through the scripted state sets; the last set sticks.
	states := ms.cfg.StateSets[ms.queryCount]
	if ms.queryCount < len(ms.cfg.StateSets)-1 {
		ms.queryCount++
	}

	if len(ranks) == 0 {
		return states, nil
	}
	out := make(map[ranklist.Rank]MemberState)
	for _, r := range ranks {
		state, found := states[r]
		if !found {
			state = MemberStateUnknown
		}
		out[r] = state
	}
	return out, nil
}

func (ms *MockSystem) AllRanks(_ context.Context) ([]ranklist.Rank, error) {
	ms.Lock()
	defer ms.Unlock()
	return ms.cfg.Ranks, nil
}

func (ms *MockSystem) RankHosts(_ context.Context) (map[ranklist.Rank]string, error) {
	ms.Lock()
	defer ms.Unlock()
	return ms.cfg.Hosts, nil
}

type (
	// MockPoolConfig configures a MockPool.
	MockPoolConfig struct {
		CreateID   string
		CreateErr  error
		DestroyErr error
		QueryErr   error
		ExcludeErr error
		SetPropErr error
		Props      map[string]string
		QueryResps []*PoolInfo
	}

	// ExcludeCall records a single ExcludeTargets invocation.
	ExcludeCall struct {
		PoolID  string
		Rank    ranklist.Rank
		Targets []uint32
	}

	// MockPool implements the PoolService interface from scripted
	// responses.
	MockPool struct {
		sync.Mutex
		cfg        MockPoolConfig
		queryCount int

		ExcludeCalls []ExcludeCall
		SetPropCalls []PropEntry
		Destroyed    []string
	}
)

// NewMockPool returns a MockPool configured with the given config.
func NewMockPool(cfg *MockPoolConfig) *MockPool {
	if cfg == nil {
		cfg = &MockPoolConfig{}
	}
	if cfg.Props == nil {
		cfg.Props = make(map[string]string)
	}
	return &MockPool{cfg: *cfg}
}

// QueryCount returns the number of Query invocations made so far.
func (mp *MockPool) QueryCount() int {
	mp.Lock()
	defer mp.Unlock()
	return mp.queryCount
}

func (mp *MockPool) Create(_ context.Context, _ *PoolCreateReq) (string, error) {
	mp.Lock()
	defer mp.Unlock()
	return mp.cfg.CreateID, mp.cfg.CreateErr
}

func (mp *MockPool) Destroy(_ context.Context, poolID string) error {
	mp.Lock()
	defer mp.Unlock()
	mp.Destroyed = append(mp.Destroyed, poolID)
	return mp.cfg.DestroyErr
}

func (mp *MockPool) Query(_ context.Context, _ string) (*PoolInfo, error) {
	mp.Lock()
	defer mp.Unlock()

	if mp.cfg.QueryErr != nil {
		return nil, mp.cfg.QueryErr
	}
	if len(mp.cfg.QueryResps) == 0 {
		return nil, errors.New("no scripted query responses")
	}

	// Step through the scripted responses; the last response sticks.
	idx := mp.queryCount
	if idx >= len(mp.cfg.QueryResps) {
		idx = len(mp.cfg.QueryResps) - 1
	}
	mp.queryCount++

	return mp.cfg.QueryResps[idx], nil
}

func (mp *MockPool) ExcludeTargets(_ context.Context, poolID string, rank ranklist.Rank, targets []uint32) error {
	mp.Lock()
	defer mp.Unlock()
	mp.ExcludeCalls = append(mp.ExcludeCalls, ExcludeCall{
		PoolID:  poolID,
		Rank:    rank,
		Targets: targets,
	})
	return mp.cfg.ExcludeErr
}

func (mp *MockPool) SetProp(_ context.Context, _, name, value string) error {
	mp.Lock()
	defer mp.Unlock()
	if mp.cfg.SetPropErr != nil {
		return mp.cfg.SetPropErr
	}
	mp.cfg.Props[name] = value
	mp.SetPropCalls = append(mp.SetPropCalls, PropEntry{Name: name, Value: value})
	return nil
}

func (mp *MockPool) GetProp(_ context.Context, _ string, names ...string) ([]PropEntry, error) {
	mp.Lock()
	defer mp.Unlock()
	return propEntries(mp.cfg.Props, names), nil
}

func propEntries(props map[string]string, names []string) []PropEntry {
	var entries []PropEntry
	if len(names) == 0 {
		for name, value := range props {
			entries = append(entries, PropEntry{Name: name, Value: value})
		}
		return entries
	}
	for _, name := range names {
		if value, found := props[name]; found {
			entries = append(entries, PropEntry{Name: name, Value: value})
		}
	}
	return entries
}

type (
	// MockContainerConfig configures a MockContainer.
	MockContainerConfig struct {
		ID           string
		PoolID       string
		CreateErr    error
		WriteErr     error
		ReadErr      error
		SnapErr      error
		Props        map[string]string
		ObjectCounts []map[ranklist.Rank]int
	}

	// MockContainer implements the Container interface from scripted
	// responses.
	MockContainer struct {
		sync.Mutex
		cfg        MockContainerConfig
		countCalls int
		nextEpoch  uint64
		snaps      map[uint64]struct{}

		Created    bool
		WriteCalls []ranklist.Rank
		ReadCalls  int
	}
)

// NewMockContainer returns a MockContainer configured with the given
// config.
func NewMockContainer(cfg *MockContainerConfig) *MockContainer {
	if cfg == nil {
		cfg = &MockContainerConfig{}
	}
	if cfg.Props == nil {
		cfg.Props = make(map[string]string)
	}
	return &MockContainer{
		cfg:       *cfg,
		nextEpoch: 1,
		snaps:     make(map[uint64]struct{}),
	}
}

func (mc *MockContainer) ID() string {
	return mc.cfg.ID
}

func (mc *MockContainer) PoolID() string {
	return mc.cfg.PoolID
}

func (mc *MockContainer) Create(_ context.Context) error {
	mc.Lock()
	defer mc.Unlock()
	if mc.cfg.CreateErr != nil {
		return mc.cfg.CreateErr
	}
	mc.Created = true
	return nil
}

func (mc *MockContainer) Destroy(_ context.Context) error {
	mc.Lock()
	defer mc.Unlock()
	mc.Created = false
	return nil
}

func (mc *MockContainer) WriteObjects(_ context.Context, rank ranklist.Rank, _ string) error {
	mc.Lock()
	defer mc.Unlock()
	if mc.cfg.WriteErr != nil {
		return mc.cfg.WriteErr
	}
	if !mc.Created {
		return errors.New("container not created")
	}
	mc.WriteCalls = append(mc.WriteCalls, rank)
	return nil
}

func (mc *MockContainer) ReadObjects(_ context.Context) error {
	mc.Lock()
	defer mc.Unlock()
	mc.ReadCalls++
	return mc.cfg.ReadErr
}

func (mc *MockContainer) ObjectsOnRank(_ context.Context, rank ranklist.Rank) (int, error) {
	mc.Lock()
	defer mc.Unlock()

	if len(mc.cfg.ObjectCounts) == 0 {
		return 0, errors.New("no scripted object counts")
	}

	// Step through the scripted counts; the last set sticks.
	counts := mc.cfg.ObjectCounts[mc.countCalls]
	if mc.countCalls < len(mc.cfg.ObjectCounts)-1 {
		mc.countCalls++
	}

	return counts[rank], nil
}

func (mc *MockContainer) SetProp(_ context.Context, name, value string) error {
	mc.Lock()
	defer mc.Unlock()
	mc.cfg.Props[name] = value
	return nil
}

func (mc *MockContainer) GetProp(_ context.Context, names ...string) ([]PropEntry, error) {
	mc.Lock()
	defer mc.Unlock()
	return propEntries(mc.cfg.Props, names), nil
}

func (mc *MockContainer) CreateSnap(_ context.Context) (uint64, error) {
	mc.Lock()
	defer mc.Unlock()
	if mc.cfg.SnapErr != nil {
		return 0, mc.cfg.SnapErr
	}
	epoch := mc.nextEpoch
	mc.nextEpoch++
	mc.snaps[epoch] = struct{}{}
	return epoch, nil
}

func (mc *MockContainer) DestroySnap(_ context.Context, epoch uint64) error {
	mc.Lock()
	defer mc.Unlock()
	if _, found := mc.snaps[epoch]; !found {
		return errors.Errorf("no snapshot with epoch %d", epoch)
	}
	delete(mc.snaps, epoch)
	return nil
}

func (mc *MockContainer) ListSnaps(_ context.Context) ([]uint64, error) {
	mc.Lock()
	defer mc.Unlock()
	epochs := make([]uint64, 0, len(mc.snaps))
	for epoch := range mc.snaps {
		epochs = append(epochs, epoch)
	}
	return epochs, nil
}

func (mc *MockContainer) Refresh(_ context.Context) error {
	return nil
}

type (
	// MockStorageConfig configures a MockStorage.
	MockStorageConfig struct {
		Devices         map[string][]Device
		SetFaultyResult map[string]error
		LedErr          error
		ScmBytes        uint64
		NvmeBytes       uint64
		AvailErr        error
	}

	// LedCall records a single LedIdentify invocation.
	LedCall struct {
		Host  string
		UUID  string
		Reset bool
	}

	// MockStorage implements the StorageService interface from
	// scripted responses.
	MockStorage struct {
		sync.Mutex
		cfg MockStorageConfig

		FaultyCalls []string
		LedCalls    []LedCall
	}
)

// NewMockStorage returns a MockStorage configured with the given
// config.
func NewMockStorage(cfg *MockStorageConfig) *MockStorage {
	if cfg == nil {
		cfg = &MockStorageConfig{}
	}
	return &MockStorage{cfg: *cfg}
}

func (ms *MockStorage) DeviceUUIDs(_ context.Context, hosts ...string) (map[string][]Device, error) {
	ms.Lock()
	defer ms.Unlock()

	if len(hosts) == 0 {
		return ms.cfg.Devices, nil
	}
	out := make(map[string][]Device)
	for _, host := range hosts {
		if devices, found := ms.cfg.Devices[host]; found {
			out[host] = devices
		}
	}
	return out, nil
}

func (ms *MockStorage) SetFaulty(_ context.Context, _, uuid string) error {
	ms.Lock()
	defer ms.Unlock()
	ms.FaultyCalls = append(ms.FaultyCalls, uuid)
	return ms.cfg.SetFaultyResult[uuid]
}

func (ms *MockStorage) LedIdentify(_ context.Context, host, uuid string, reset bool) error {
	ms.Lock()
	defer ms.Unlock()
	ms.LedCalls = append(ms.LedCalls, LedCall{Host: host, UUID: uuid, Reset: reset})
	return ms.cfg.LedErr
}

func (ms *MockStorage) AvailableStorage(_ context.Context) (uint64, uint64, error) {
	ms.Lock()
	defer ms.Unlock()
	return ms.cfg.ScmBytes, ms.cfg.NvmeBytes, ms.cfg.AvailErr
}

type (
	// MockBenchConfig configures a MockBench.
	MockBenchConfig struct {
		Result *BenchResult
		Err    error
		Delay  time.Duration
		RunFn  func(ctx context.Context, params *BenchParams) (*BenchResult, error)
	}

	// MockBench implements the BenchRunner interface from scripted
	// responses.
	MockBench struct {
		sync.Mutex
		cfg MockBenchConfig

		Calls []*BenchParams
	}
)

// NewMockBench returns a MockBench configured with the given config.
func NewMockBench(cfg *MockBenchConfig) *MockBench {
	if cfg == nil {
		cfg = &MockBenchConfig{}
	}
	return &MockBench{cfg: *cfg}
}

func (mb *MockBench) Run(ctx context.Context, params *BenchParams) (*BenchResult, error) {
	mb.Lock()
	mb.Calls = append(mb.Calls, params)
	runFn := mb.cfg.RunFn
	mb.Unlock()

	if runFn != nil {
		return runFn(ctx, params)
	}

	if mb.cfg.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mb.cfg.Delay):
		}
	}

	if mb.cfg.Err != nil {
		return nil, mb.cfg.Err
	}
	result := mb.cfg.Result
	if result == nil {
		result = &BenchResult{}
	}
	return result, nil
}
