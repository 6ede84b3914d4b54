// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides the bus's Prometheus collectors, registered
// against a caller-supplied registry so multiple buses in one process
// (or tests) don't collide on the default global registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements both bus.MetricsCollector and saga.MetricsCollector
// with Prometheus counters and a histogram, labeled by message/workflow name.
type Collector struct {
	dispatched      *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	sagaSteps       *prometheus.CounterVec
	sagaConflicts   *prometheus.CounterVec
}

// New creates a Collector and registers its metrics against registerer.
// Pass prometheus.DefaultRegisterer in production, or
// prometheus.NewRegistry() in tests to avoid collisions across test runs.
func New(registerer prometheus.Registerer) *Collector {
	c := &Collector{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgbus_messages_dispatched_total",
			Help: "Total messages dispatched to handlers, by message name.",
		}, []string{"message"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgbus_handler_errors_total",
			Help: "Total handler failures, by message name.",
		}, []string{"message"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "msgbus_handler_duration_seconds",
			Help:    "Handler execution duration in seconds, by message name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"message"}),
		sagaSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_steps_total",
			Help: "Total workflow steps successfully persisted, by workflow name.",
		}, []string{"workflow"}),
		sagaConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_optimistic_conflicts_total",
			Help: "Total optimistic-concurrency conflicts on workflow state saves, by workflow name.",
		}, []string{"workflow"}),
	}

	registerer.MustRegister(c.dispatched, c.handlerErrors, c.handlerDuration, c.sagaSteps, c.sagaConflicts)
	return c
}

func (c *Collector) MessageDispatched(messageName string) {
	c.dispatched.WithLabelValues(messageName).Inc()
}

func (c *Collector) HandlerError(messageName string) {
	c.handlerErrors.WithLabelValues(messageName).Inc()
}

func (c *Collector) HandlerDuration(messageName string, seconds float64) {
	c.handlerDuration.WithLabelValues(messageName).Observe(seconds)
}

func (c *Collector) StepCompleted(workflowName string) {
	c.sagaSteps.WithLabelValues(workflowName).Inc()
}

func (c *Collector) OptimisticConflict(workflowName string) {
	c.sagaConflicts.WithLabelValues(workflowName).Inc()
}
