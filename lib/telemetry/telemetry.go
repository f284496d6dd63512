//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package telemetry exposes harness run metrics for scraping, so
// long-running fault campaigns can be watched from the outside.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daos-stack/rift/logging"
)

// Metrics aggregates the counters and histograms published by the
// harness.
type Metrics struct {
	faultActions     *prometheus.CounterVec
	campaignFailures prometheus.Counter
	scenarioRuns     *prometheus.CounterVec
	rebuildDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics returns a Metrics set registered on its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		faultActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rift",
			Name:      "fault_actions_total",
			Help:      "Fault actions applied, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		campaignFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rift",
			Name:      "campaign_failures_total",
			Help:      "Failures collected across all campaign runs.",
		}),
		scenarioRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rift",
			Name:      "scenario_runs_total",
			Help:      "Scenario runs, by scenario and result.",
		}, []string{"scenario", "result"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rift",
			Name:      "rebuild_duration_seconds",
			Help:      "Observed wall-clock duration of pool rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.faultActions, m.campaignFailures, m.scenarioRuns, m.rebuildDuration)
	return m
}

// RecordFaultAction counts one applied fault action.
func (m *Metrics) RecordFaultAction(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.faultActions.WithLabelValues(kind, outcome).Inc()
}

// RecordCampaignFailures counts failures from one campaign run.
func (m *Metrics) RecordCampaignFailures(count int) {
	m.campaignFailures.Add(float64(count))
}

// RecordScenarioRun counts one completed scenario run.
func (m *Metrics) RecordScenarioRun(scenario string, passed bool) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	m.scenarioRuns.WithLabelValues(scenario, result).Inc()
}

// RecordRebuildDuration observes one completed rebuild.
func (m *Metrics) RecordRebuildDuration(d time.Duration) {
	m.rebuildDuration.Observe(d.Seconds())
}

// Registry returns the underlying registry for custom collectors and
// for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartExporter serves the metrics over HTTP until the context is
// canceled.
func StartExporter(ctx context.Context, log logging.Logger, m *Metrics, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("telemetry exporter shutdown: %s", err)
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("telemetry exporter: %s", err)
		}
	}()

	log.Infof("telemetry exporter listening on %s", srv.Addr)
}
