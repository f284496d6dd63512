//
// (C) Copyright 2021-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package cluster

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/daos-stack/rift/lib/ranklist"
	"github.com/daos-stack/rift/logging"
)

const (
	// simRecordsPerObject approximates the number of records moved
	// per rebuilt object when reporting rebuild progress.
	simRecordsPerObject = 64
	// simObjectsPerWrite is the number of objects targeted at the
	// requested rank by a single WriteObjects call.
	simObjectsPerWrite = 8
)

type (
	// SimConfig configures a simulated cluster.
	SimConfig struct {
		Engines          int
		TargetsPerEngine int
		DevicesPerHost   int
		SysXSPerHost     int
		ScmBytes         uint64
		NvmeBytes        uint64
		RebuildTicks     int
		BenchDuration    time.Duration
	}

	simPool struct {
		info         PoolInfo
		props        map[string]string
		downRanks    map[ranklist.Rank]struct{}
		rebuildTicks int
		contIDs      map[string]struct{}
	}

	simContainer struct {
		id           string
		poolID       string
		created      bool
		props        map[string]string
		objects      map[ranklist.Rank]int
		bytesWritten uint64
		snaps        map[uint64]struct{}
		nextEpoch    uint64
	}

	// Sim is an in-memory simulation of the cluster services. It
	// implements SystemService, PoolService and StorageService, and
	// provides Container, BenchRunner and Mounter instances bound to
	// itself. Rebuild progresses one tick per pool query, so a
	// convergence poller observing the pool drives the simulated
	// rebuild to completion.
	Sim struct {
		sync.Mutex
		log     logging.Logger
		cfg     SimConfig
		members map[ranklist.Rank]MemberState
		hosts   map[ranklist.Rank]string
		devices map[string][]Device
		faulty  map[string]struct{}
		pools   map[string]*simPool
		conts   map[string]*simContainer
	}
)

// DefaultSimConfig returns a SimConfig with sensible defaults for
// scenario dry runs.
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		Engines:          4,
		TargetsPerEngine: 8,
		DevicesPerHost:   2,
		SysXSPerHost:     1,
		ScmBytes:         16 << 30,
		NvmeBytes:        256 << 30,
		RebuildTicks:     3,
		BenchDuration:    50 * time.Millisecond,
	}
}

// NewSim returns a simulated cluster with all engines joined.
func NewSim(log logging.Logger, cfg *SimConfig) *Sim {
	if cfg == nil {
		cfg = DefaultSimConfig()
	}

	sim := &Sim{
		log:     log,
		cfg:     *cfg,
		members: make(map[ranklist.Rank]MemberState),
		hosts:   make(map[ranklist.Rank]string),
		devices: make(map[string][]Device),
		faulty:  make(map[string]struct{}),
		pools:   make(map[string]*simPool),
		conts:   make(map[string]*simContainer),
	}

	for i := 0; i < cfg.Engines; i++ {
		rank := ranklist.Rank(i)
		host := fmt.Sprintf("host-%03d", i)
		sim.members[rank] = MemberStateJoined
		sim.hosts[rank] = host

		for j := 0; j < cfg.DevicesPerHost; j++ {
			sim.devices[host] = append(sim.devices[host], Device{
				UUID:     uuid.New().String(),
				TrAddr:   fmt.Sprintf("0000:%02x:00.0", 0x80+j),
				Host:     host,
				HasSysXS: j < cfg.SysXSPerHost,
			})
		}
	}

	return sim
}

func (s *Sim) StopRanks(_ context.Context, ranks []ranklist.Rank, force bool) error {
	s.Lock()
	defer s.Unlock()

	for _, rank := range ranks {
		state, found := s.members[rank]
		if !found {
			return errors.Errorf("unknown rank %d", rank)
		}
		if state == MemberStateStopped {
			continue
		}
		if state == MemberStateJoined && !force {
			return errors.Errorf("rank %d is joined; use force to stop", rank)
		}
		s.members[rank] = MemberStateStopped
	}

	s.markRanksDown(ranks)
	return nil
}

func (s *Sim) StartRanks(_ context.Context, ranks []ranklist.Rank) error {
	s.Lock()
	defer s.Unlock()

	if len(ranks) == 0 {
		for rank := range s.members {
			ranks = append(ranks, rank)
		}
	}
	for _, rank := range ranks {
		if _, found := s.members[rank]; !found {
			return errors.Errorf("unknown rank %d", rank)
		}
		s.members[rank] = MemberStateJoined
	}
	return nil
}

func (s *Sim) QueryRankStates(_ context.Context, ranks []ranklist.Rank) (map[ranklist.Rank]MemberState, error) {
	s.Lock()
	defer s.Unlock()

	out := make(map[ranklist.Rank]MemberState)
	if len(ranks) == 0 {
		for rank, state := range s.members {
			out[rank] = state
		}
		return out, nil
	}
	for _, rank := range ranks {
		state, found := s.members[rank]
		if !found {
			return nil, errors.Errorf("unknown rank %d", rank)
		}
		out[rank] = state
	}
	return out, nil
}

func (s *Sim) AllRanks(_ context.Context) ([]ranklist.Rank, error) {
	s.Lock()
	defer s.Unlock()

	ranks := make([]ranklist.Rank, 0, len(s.members))
	for rank := range s.members {
		ranks = append(ranks, rank)
	}
	return ranklist.RankList(ranks).Dedupe(), nil
}

func (s *Sim) RankHosts(_ context.Context) (map[ranklist.Rank]string, error) {
	s.Lock()
	defer s.Unlock()

	out := make(map[ranklist.Rank]string, len(s.hosts))
	for rank, host := range s.hosts {
		out[rank] = host
	}
	return out, nil
}

// markRanksDown marks the given ranks as down in every pool and kicks
// off a simulated rebuild in each affected pool. The caller must hold
// the lock.
func (s *Sim) markRanksDown(ranks []ranklist.Rank) {
	for _, pool := range s.pools {
		changed := false
		for _, rank := range ranks {
			if _, down := pool.downRanks[rank]; down {
				continue
			}
			pool.downRanks[rank] = struct{}{}
			pool.info.DisabledTargets += uint32(s.cfg.TargetsPerEngine)
			if pool.info.ActiveTargets >= uint32(s.cfg.TargetsPerEngine) {
				pool.info.ActiveTargets -= uint32(s.cfg.TargetsPerEngine)
			}
			changed = true
		}
		if changed {
			s.startRebuild(pool)
		}
	}
}

// startRebuild transitions a pool into a busy rebuild state. The
// caller must hold the lock.
func (s *Sim) startRebuild(pool *simPool) {
	pool.info.Rebuild = &RebuildStatus{State: RebuildStateBusy}
	pool.info.Version++
	pool.rebuildTicks = s.cfg.RebuildTicks
}

// finishRebuild completes a pool rebuild, migrating container objects
// off the down ranks. The caller must hold the lock.
func (s *Sim) finishRebuild(pool *simPool) {
	var migrated uint64
	for contID := range pool.contIDs {
		cont, found := s.conts[contID]
		if !found {
			continue
		}
		for rank := range pool.downRanks {
			count := cont.objects[rank]
			if count == 0 {
				continue
			}
			cont.objects[rank] = 0
			migrated += uint64(count)
			if survivor, ok := s.lowestUpRank(pool); ok {
				cont.objects[survivor] += count
			}
		}
	}

	pool.info.Rebuild.State = RebuildStateDone
	pool.info.Rebuild.Objects += migrated
	pool.info.Rebuild.Records += migrated * simRecordsPerObject
}

func (s *Sim) lowestUpRank(pool *simPool) (ranklist.Rank, bool) {
	best := ranklist.NilRank
	for rank, state := range s.members {
		if state != MemberStateJoined {
			continue
		}
		if _, down := pool.downRanks[rank]; down {
			continue
		}
		if rank < best {
			best = rank
		}
	}
	return best, best != ranklist.NilRank
}

func (s *Sim) getPool(poolID string) (*simPool, error) {
	pool, found := s.pools[poolID]
	if !found {
		return nil, errors.Errorf("unknown pool %q", poolID)
	}
	return pool, nil
}

func (s *Sim) Create(_ context.Context, req *PoolCreateReq) (string, error) {
	s.Lock()
	defer s.Unlock()

	scmBytes := req.ScmBytes
	if scmBytes == 0 {
		scmBytes = s.cfg.ScmBytes
	}
	nvmeBytes := req.NvmeBytes
	if nvmeBytes == 0 {
		nvmeBytes = s.cfg.NvmeBytes
	}

	poolID := uuid.New().String()
	totalTargets := uint32(s.cfg.Engines * s.cfg.TargetsPerEngine)
	s.pools[poolID] = &simPool{
		info: PoolInfo{
			UUID:          poolID,
			TotalTargets:  totalTargets,
			ActiveTargets: totalTargets,
			TotalEngines:  uint32(s.cfg.Engines),
			Rebuild:       &RebuildStatus{State: RebuildStateIdle},
			Scm:           &StorageUsage{Total: scmBytes, Free: scmBytes},
			Nvme:          &StorageUsage{Total: nvmeBytes, Free: nvmeBytes},
		},
		props:     make(map[string]string),
		downRanks: make(map[ranklist.Rank]struct{}),
		contIDs:   make(map[string]struct{}),
	}

	s.log.Debugf("sim: created pool %s (%d targets)", poolID, totalTargets)
	return poolID, nil
}

func (s *Sim) Destroy(_ context.Context, poolID string) error {
	s.Lock()
	defer s.Unlock()

	pool, err := s.getPool(poolID)
	if err != nil {
		return err
	}
	for contID := range pool.contIDs {
		delete(s.conts, contID)
	}
	delete(s.pools, poolID)
	return nil
}

func (s *Sim) Query(_ context.Context, poolID string) (*PoolInfo, error) {
	s.Lock()
	defer s.Unlock()

	pool, err := s.getPool(poolID)
	if err != nil {
		return nil, err
	}

	// Each query advances an in-flight rebuild by one tick.
	if pool.info.Rebuild.State == RebuildStateBusy {
		pool.rebuildTicks--
		if pool.rebuildTicks <= 0 {
			s.finishRebuild(pool)
		}
	}

	if leader, ok := s.lowestUpRank(pool); ok {
		pool.info.Leader = leader.Uint32()
	}

	// Return a copy so that callers never share simulator state.
	info := pool.info
	rebuild := *pool.info.Rebuild
	scm := *pool.info.Scm
	nvme := *pool.info.Nvme
	info.Rebuild = &rebuild
	info.Scm = &scm
	info.Nvme = &nvme

	return &info, nil
}

func (s *Sim) ExcludeTargets(_ context.Context, poolID string, rank ranklist.Rank, targets []uint32) error {
	s.Lock()
	defer s.Unlock()

	pool, err := s.getPool(poolID)
	if err != nil {
		return err
	}
	if _, found := s.members[rank]; !found {
		return errors.Errorf("unknown rank %d", rank)
	}
	if len(targets) == 0 {
		return errors.New("no targets specified")
	}

	pool.info.DisabledTargets += uint32(len(targets))
	if pool.info.ActiveTargets >= uint32(len(targets)) {
		pool.info.ActiveTargets -= uint32(len(targets))
	}
	s.startRebuild(pool)
	return nil
}

func (s *Sim) SetProp(_ context.Context, poolID, name, value string) error {
	s.Lock()
	defer s.Unlock()

	pool, err := s.getPool(poolID)
	if err != nil {
		return err
	}
	pool.props[name] = value
	return nil
}

func (s *Sim) GetProp(_ context.Context, poolID string, names ...string) ([]PropEntry, error) {
	s.Lock()
	defer s.Unlock()

	pool, err := s.getPool(poolID)
	if err != nil {
		return nil, err
	}
	return propEntries(pool.props, names), nil
}

func (s *Sim) DeviceUUIDs(_ context.Context, hosts ...string) (map[string][]Device, error) {
	s.Lock()
	defer s.Unlock()

	out := make(map[string][]Device)
	if len(hosts) == 0 {
		for host, devices := range s.devices {
			out[host] = append([]Device{}, devices...)
		}
		return out, nil
	}
	for _, host := range hosts {
		devices, found := s.devices[host]
		if !found {
			return nil, errors.Errorf("unknown host %q", host)
		}
		out[host] = append([]Device{}, devices...)
	}
	return out, nil
}

func (s *Sim) findDevice(host, devUUID string) (*Device, error) {
	for i, device := range s.devices[host] {
		if device.UUID == devUUID {
			return &s.devices[host][i], nil
		}
	}
	return nil, errors.Errorf("no device %q on host %q", devUUID, host)
}

func (s *Sim) SetFaulty(_ context.Context, host, devUUID string) error {
	s.Lock()
	defer s.Unlock()

	device, err := s.findDevice(host, devUUID)
	if err != nil {
		return err
	}

	if device.HasSysXS {
		// Faulting a device which hosts system metadata takes the
		// whole engine down; the management call itself fails.
		var lost []ranklist.Rank
		for rank, rankHost := range s.hosts {
			if rankHost == host {
				s.members[rank] = MemberStateExcluded
				lost = append(lost, rank)
			}
		}
		s.markRanksDown(lost)
		return errors.Errorf("cannot set faulty on device %s: hosts system metadata", devUUID)
	}

	s.faulty[devUUID] = struct{}{}

	// Targets backed by the faulted device drop out of every pool.
	perDevice := s.cfg.TargetsPerEngine / s.cfg.DevicesPerHost
	if perDevice < 1 {
		perDevice = 1
	}
	for _, pool := range s.pools {
		pool.info.DisabledTargets += uint32(perDevice)
		if pool.info.ActiveTargets >= uint32(perDevice) {
			pool.info.ActiveTargets -= uint32(perDevice)
		}
		s.startRebuild(pool)
	}
	return nil
}

func (s *Sim) LedIdentify(_ context.Context, host, devUUID string, reset bool) error {
	s.Lock()
	defer s.Unlock()

	if _, err := s.findDevice(host, devUUID); err != nil {
		return err
	}
	if reset {
		delete(s.faulty, devUUID)
	}
	return nil
}

func (s *Sim) AvailableStorage(_ context.Context) (uint64, uint64, error) {
	return s.cfg.ScmBytes, s.cfg.NvmeBytes, nil
}

// FaultyDevices returns the UUIDs of all devices currently marked
// faulty.
func (s *Sim) FaultyDevices() []string {
	s.Lock()
	defer s.Unlock()

	out := make([]string, 0, len(s.faulty))
	for devUUID := range s.faulty {
		out = append(out, devUUID)
	}
	return out
}

// SimContainer is a Container implementation bound to a simulated
// cluster.
type SimContainer struct {
	sim    *Sim
	id     string
	poolID string
}

// NewContainer returns a container handle within the given simulated
// pool. The container does not exist until Create is called.
func (s *Sim) NewContainer(poolID string) *SimContainer {
	return &SimContainer{
		sim:    s,
		id:     uuid.New().String(),
		poolID: poolID,
	}
}

func (sc *SimContainer) ID() string {
	return sc.id
}

func (sc *SimContainer) PoolID() string {
	return sc.poolID
}

func (sc *SimContainer) getCont() (*simContainer, error) {
	cont, found := sc.sim.conts[sc.id]
	if !found || !cont.created {
		return nil, errors.Errorf("container %q does not exist", sc.id)
	}
	return cont, nil
}

func (sc *SimContainer) Create(_ context.Context) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	pool, err := sc.sim.getPool(sc.poolID)
	if err != nil {
		return err
	}
	if _, found := sc.sim.conts[sc.id]; found {
		return errors.Errorf("container %q already exists", sc.id)
	}

	sc.sim.conts[sc.id] = &simContainer{
		id:        sc.id,
		poolID:    sc.poolID,
		created:   true,
		props:     map[string]string{"status": "healthy"},
		objects:   make(map[ranklist.Rank]int),
		snaps:     make(map[uint64]struct{}),
		nextEpoch: 1,
	}
	pool.contIDs[sc.id] = struct{}{}
	return nil
}

func (sc *SimContainer) Destroy(_ context.Context) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return err
	}
	if pool, found := sc.sim.pools[cont.poolID]; found {
		delete(pool.contIDs, cont.id)
	}
	delete(sc.sim.conts, cont.id)
	return nil
}

func (sc *SimContainer) WriteObjects(_ context.Context, rank ranklist.Rank, objClass string) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return err
	}
	state, found := sc.sim.members[rank]
	if !found {
		return errors.Errorf("unknown rank %d", rank)
	}
	if state != MemberStateJoined {
		return errors.Errorf("rank %d is %s; cannot target writes", rank, state)
	}

	cont.objects[rank] += simObjectsPerWrite

	// Redundant object classes spread shards across the other
	// engines as well.
	if strings.HasPrefix(objClass, "RP_") || strings.HasPrefix(objClass, "EC_") {
		for other, otherState := range sc.sim.members {
			if other == rank || otherState != MemberStateJoined {
				continue
			}
			cont.objects[other]++
		}
	}
	return nil
}

func (sc *SimContainer) ReadObjects(_ context.Context) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return err
	}
	total := 0
	for _, count := range cont.objects {
		total += count
	}
	if total == 0 && cont.bytesWritten == 0 {
		return errors.New("no data to read back")
	}
	return nil
}

func (sc *SimContainer) ObjectsOnRank(_ context.Context, rank ranklist.Rank) (int, error) {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return 0, err
	}
	return cont.objects[rank], nil
}

func (sc *SimContainer) SetProp(_ context.Context, name, value string) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return err
	}
	cont.props[name] = value
	return nil
}

func (sc *SimContainer) GetProp(_ context.Context, names ...string) ([]PropEntry, error) {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return nil, err
	}
	return propEntries(cont.props, names), nil
}

func (sc *SimContainer) CreateSnap(_ context.Context) (uint64, error) {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return 0, err
	}
	epoch := cont.nextEpoch
	cont.nextEpoch++
	cont.snaps[epoch] = struct{}{}
	return epoch, nil
}

func (sc *SimContainer) DestroySnap(_ context.Context, epoch uint64) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return err
	}
	if _, found := cont.snaps[epoch]; !found {
		return errors.Errorf("no snapshot with epoch %d", epoch)
	}
	delete(cont.snaps, epoch)
	return nil
}

func (sc *SimContainer) ListSnaps(_ context.Context) ([]uint64, error) {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	cont, err := sc.getCont()
	if err != nil {
		return nil, err
	}
	epochs := make([]uint64, 0, len(cont.snaps))
	for epoch := range cont.snaps {
		epochs = append(epochs, epoch)
	}
	return epochs, nil
}

func (sc *SimContainer) Refresh(_ context.Context) error {
	sc.sim.Lock()
	defer sc.sim.Unlock()

	_, err := sc.getCont()
	return err
}

// SimBench is a BenchRunner implementation bound to a simulated
// cluster.
type SimBench struct {
	sim *Sim
}

// Bench returns a benchmark runner bound to the simulated cluster.
func (s *Sim) Bench() *SimBench {
	return &SimBench{sim: s}
}

func (sb *SimBench) Run(ctx context.Context, params *BenchParams) (*BenchResult, error) {
	// Simulate the tool being in flight for a while so that fault
	// injection can race against it.
	duration := sb.sim.cfg.BenchDuration
	if duration > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(duration):
		}
	}

	sb.sim.Lock()
	defer sb.sim.Unlock()

	pool, err := sb.sim.getPool(params.PoolID)
	if err != nil {
		return nil, err
	}
	cont, found := sb.sim.conts[params.ContID]
	if !found || !cont.created {
		return nil, errors.Errorf("container %q does not exist", params.ContID)
	}

	isRead := false
	for _, flag := range params.Flags {
		if flag == "-r" {
			isRead = true
			break
		}
	}

	procs := params.Processes
	if procs < 1 {
		procs = 1
	}
	bytes := params.BlockSize * uint64(procs)
	mibs := float64(bytes) / float64(1<<20)

	if isRead {
		if cont.bytesWritten == 0 {
			return nil, errors.New("read requested but container has no data")
		}
		return &BenchResult{
			Stdout:   fmt.Sprintf("Max Read:  %.2f MiB\n", mibs),
			ReadMiBs: mibs,
		}, nil
	}

	if pool.info.Nvme.Free < bytes {
		return nil, errors.Errorf("pool %s out of space: %d < %d",
			params.PoolID, pool.info.Nvme.Free, bytes)
	}
	pool.info.Nvme.Free -= bytes
	cont.bytesWritten += bytes

	// Spread one object per process across the up engines.
	var upRanks []ranklist.Rank
	for rank, state := range sb.sim.members {
		if state != MemberStateJoined {
			continue
		}
		if _, down := pool.downRanks[rank]; down {
			continue
		}
		upRanks = append(upRanks, rank)
	}
	for i := 0; i < procs && len(upRanks) > 0; i++ {
		cont.objects[upRanks[i%len(upRanks)]]++
	}

	return &BenchResult{
		Stdout:    fmt.Sprintf("Max Write: %.2f MiB\n", mibs),
		WriteMiBs: mibs,
	}, nil
}

// SimMount is a Mounter implementation bound to a simulated cluster.
type SimMount struct {
	sim     *Sim
	contID  string
	mounted bool
}

// NewMount returns a Mounter for the given container within the
// simulated cluster.
func (s *Sim) NewMount(contID string) *SimMount {
	return &SimMount{sim: s, contID: contID}
}

func (sm *SimMount) Start(_ context.Context) error {
	sm.sim.Lock()
	defer sm.sim.Unlock()

	cont, found := sm.sim.conts[sm.contID]
	if !found || !cont.created {
		return errors.Errorf("container %q does not exist", sm.contID)
	}
	if sm.mounted {
		return errors.Errorf("%s already mounted", sm.Path())
	}
	sm.mounted = true
	return nil
}

func (sm *SimMount) Stop(_ context.Context) error {
	sm.sim.Lock()
	defer sm.sim.Unlock()

	if !sm.mounted {
		return errors.Errorf("%s not mounted", sm.Path())
	}
	sm.mounted = false
	return nil
}

func (sm *SimMount) Path() string {
	return "/mnt/sim/" + sm.contID
}
