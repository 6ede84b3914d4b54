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

package saga

import (
	"context"
	"log/slog"

	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
)

// Engine owns a set of workflow definitions and wires them onto a bus
// builder: one bus-side handler per onStartedBy/onWhen entry, plus an init
// hook that initializes persistence storage for every definition.
type Engine struct {
	serializer  bus.Serializer
	persistence Persistence
	logger      *slog.Logger
	metrics     MetricsCollector

	definitions []*Definition
	initialized bool
}

// NewEngine creates a workflow engine backed by persistence, using
// serializer for state snapshot/delta conversion.
func NewEngine(persistence Persistence, serializer bus.Serializer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{serializer: serializer, persistence: persistence, logger: logger, metrics: noopMetrics{}}
}

// WithMetrics replaces the engine's no-op metrics collector, recording
// saga_steps_total and saga_optimistic_conflicts_total observations
// alongside the bus's own dispatch metrics. Call before Wire.
func (e *Engine) WithMetrics(metrics MetricsCollector) *Engine {
	e.metrics = metrics
	return e
}

// Register adds def to the engine. Call before Wire.
//
// Register panics if the engine has already been wired, or if a definition
// with the same name was registered earlier: both are programming errors
// caught long before Wire's bus handlers ever dispatch a message, matching
// the bus builder's own fatal-at-config-time convention.
func (e *Engine) Register(def *Definition) *Engine {
	if e.initialized {
		panic(&buserrors.LifecycleViolationError{Operation: "register", State: "wired"})
	}
	for _, existing := range e.definitions {
		if existing.Name == def.Name {
			panic(&buserrors.WorkflowAlreadyRegisteredError{WorkflowName: def.Name})
		}
	}

	e.definitions = append(e.definitions, def)
	return e
}

// Wire registers one bus handler per onStartedBy/onWhen entry across all
// registered definitions, and an init hook that calls
// Persistence.InitializeWorkflow for each definition. Must be called
// before builder.Initialize. After Wire, Register panics.
//
// The handlers Wire registers for one kind of entry share a single function
// literal, so the bus registry sees them as the same handler: if two
// definitions react to the same message name with the same kind of entry,
// the builder rejects the second registration as a duplicate.
func (e *Engine) Wire(builder *bus.Builder) {
	e.initialized = true

	d := &dispatcher{serializer: e.serializer, persistence: e.persistence, logger: e.logger, metrics: e.metrics}

	for _, def := range e.definitions {
		def := def

		for _, entry := range def.startedBy {
			entry := entry
			builder.WithHandler(entry.constructor, func(ctx context.Context, msg bus.Message, attrs bus.MessageAttributes) error {
				return d.dispatchStartedBy(ctx, def, entry, msg, attrs)
			})
		}

		for _, entry := range def.when {
			entry := entry
			builder.WithHandler(entry.constructor, func(ctx context.Context, msg bus.Message, attrs bus.MessageAttributes) error {
				return d.dispatchWhen(ctx, def, entry, msg, attrs)
			})
		}
	}

	builder.WithInitHook(func(ctx context.Context) error {
		for _, def := range e.definitions {
			if e.persistence == nil {
				return &buserrors.PersistenceNotConfiguredError{WorkflowName: def.Name}
			}
			if err := e.persistence.InitializeWorkflow(ctx, def); err != nil {
				return err
			}
		}
		return nil
	})
}
