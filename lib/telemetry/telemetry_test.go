//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package telemetry_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/daos-stack/rift/common/test"
	"github.com/daos-stack/rift/lib/telemetry"
)

func TestTelemetry_Counters(t *testing.T) {
	m := telemetry.NewMetrics()

	m.RecordFaultAction("kill-rank", nil)
	m.RecordFaultAction("kill-rank", nil)
	m.RecordFaultAction("set-device-faulty", errors.New("rejected"))
	m.RecordCampaignFailures(3)
	m.RecordScenarioRun("rebuild-basic", true)
	m.RecordScenarioRun("rebuild-basic", false)
	m.RecordRebuildDuration(42 * time.Second)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	totals := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if counter := metric.GetCounter(); counter != nil {
				totals[mf.GetName()] += counter.GetValue()
			}
		}
	}

	test.AssertEqual(t, 3.0, totals["rift_fault_actions_total"], "unexpected fault action count")
	test.AssertEqual(t, 3.0, totals["rift_campaign_failures_total"], "unexpected failure count")
	test.AssertEqual(t, 2.0, totals["rift_scenario_runs_total"], "unexpected scenario run count")

	var sampleCount uint64
	var sampleSum float64
	for _, mf := range families {
		if mf.GetName() != "rift_rebuild_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			sampleCount += metric.GetHistogram().GetSampleCount()
			sampleSum += metric.GetHistogram().GetSampleSum()
		}
	}
	test.AssertEqual(t, uint64(1), sampleCount, "unexpected rebuild duration sample count")
	test.AssertEqual(t, 42.0, sampleSum, "unexpected rebuild duration sample sum")
}
