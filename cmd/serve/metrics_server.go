package serve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"github.com/prometheus/client_golang/prometheus"
)

const promMetricPrefix = "qmcpu_"

// resolution outcomes
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type serverMetrics struct {
	resolutions *prometheus.CounterVec
	duration    prometheus.Histogram
	models      prometheus.GaugeFunc
}

// newServerMetrics creates the collectors and registers them with reg. modelCount is
// called on every scrape.
func newServerMetrics(reg prometheus.Registerer, modelCount func() float64) *serverMetrics {
	m := &serverMetrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: promMetricPrefix + "cpu_option_resolutions_total",
				Help: "CPU option resolutions by outcome",
			},
			[]string{"outcome", "arch"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    promMetricPrefix + "cpu_option_resolution_duration_seconds",
				Help:    "Time spent resolving CPU options, including custom model lookups",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		models: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: promMetricPrefix + "custom_cpu_models",
				Help: "Number of custom CPU models in the registry",
			},
			modelCount,
		),
	}
	reg.MustRegister(m.resolutions, m.duration, m.models)
	return m
}
