/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prometheus provides a Prometheus metrics exporter.
package prometheus

import (
	"fmt"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"

	"github.com/yorkie-team/docsync/internal/version"
)

const (
	namespace    = "docsync"
	streamLabel  = "stream"
	codeLabel    = "code"
	resultLabel  = "result"
	stateLabel   = "state"
	outcomeLabel = "outcome"
)

// The outcomes of existence filter mismatches.
const (
	OutcomeBloomSuccess       = "bloom_success"
	OutcomeBloomFalsePositive = "bloom_false_positive"
	OutcomeSkipped            = "skipped"
)

// Metrics manages the metric information of the sync engine. A nil Metrics
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	clientMetrics *grpcprometheus.ClientMetrics

	clientVersion *prometheus.GaugeVec

	streamOpensTotal    *prometheus.CounterVec
	streamFailuresTotal *prometheus.CounterVec
	onlineState         *prometheus.GaugeVec

	writesTotal *prometheus.CounterVec

	limboDocuments                 *prometheus.GaugeVec
	existenceFilterMismatchesTotal *prometheus.CounterVec
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	clientMetrics := grpcprometheus.NewClientMetrics()

	if err := reg.Register(clientMetrics); err != nil {
		return nil, fmt.Errorf("register grpc client metrics: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	metrics := &Metrics{
		registry:      reg,
		clientMetrics: clientMetrics,
		clientVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "version",
			Help:      "Which version is running. 1 for 'client_version' label with current version.",
		}, []string{"client_version"}),
		streamOpensTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "opens_total",
			Help:      "The total count of streams opened to the backend.",
		}, []string{streamLabel}),
		streamFailuresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "failures_total",
			Help:      "The total count of streams closed with an error.",
		}, []string{streamLabel, codeLabel}),
		onlineState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "online_state",
			Help:      "1 for the current online state of the client.",
		}, []string{stateLabel}),
		writesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "batches_total",
			Help:      "The total count of mutation batches acknowledged or rejected by the backend.",
		}, []string{resultLabel}),
		limboDocuments: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "limbo_documents",
			Help:      "The number of documents in limbo, being resolved or waiting to be.",
		}, []string{stateLabel}),
		existenceFilterMismatchesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "existence_filter_mismatches_total",
			Help:      "The total count of existence filter mismatches by how they were handled.",
		}, []string{outcomeLabel}),
	}

	metrics.clientVersion.With(prometheus.Labels{
		"client_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// AddStreamOpen counts an opened stream.
func (m *Metrics) AddStreamOpen(stream string) {
	if m == nil {
		return
	}
	m.streamOpensTotal.With(prometheus.Labels{streamLabel: stream}).Inc()
}

// AddStreamFailure counts a stream closed with an error of the given code.
func (m *Metrics) AddStreamFailure(stream, code string) {
	if m == nil {
		return
	}
	m.streamFailuresTotal.With(prometheus.Labels{
		streamLabel: stream,
		codeLabel:   code,
	}).Inc()
}

// SetOnlineState marks state as the current online state.
func (m *Metrics) SetOnlineState(state string, states ...string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.onlineState.With(prometheus.Labels{stateLabel: s}).Set(0)
	}
	m.onlineState.With(prometheus.Labels{stateLabel: state}).Set(1)
}

// AddAcknowledgedWrite counts a batch acknowledged by the backend.
func (m *Metrics) AddAcknowledgedWrite() {
	if m == nil {
		return
	}
	m.writesTotal.With(prometheus.Labels{resultLabel: "acknowledged"}).Inc()
}

// AddRejectedWrite counts a batch rejected by the backend.
func (m *Metrics) AddRejectedWrite() {
	if m == nil {
		return
	}
	m.writesTotal.With(prometheus.Labels{resultLabel: "rejected"}).Inc()
}

// SetLimboDocuments sets the number of limbo documents being resolved and
// waiting for a resolution slot.
func (m *Metrics) SetLimboDocuments(active, queued int) {
	if m == nil {
		return
	}
	m.limboDocuments.With(prometheus.Labels{stateLabel: "active"}).Set(float64(active))
	m.limboDocuments.With(prometheus.Labels{stateLabel: "queued"}).Set(float64(queued))
}

// AddExistenceFilterMismatch counts a mismatch handled with the given
// outcome.
func (m *Metrics) AddExistenceFilterMismatch(outcome string) {
	if m == nil {
		return
	}
	m.existenceFilterMismatchesTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// StreamClientInterceptor returns the interceptor recording the messages
// of gRPC streams, or nil if m is nil.
func (m *Metrics) StreamClientInterceptor() grpc.StreamClientInterceptor {
	if m == nil {
		return nil
	}
	return m.clientMetrics.StreamClientInterceptor()
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
