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

	"golang.org/x/sync/errgroup"

	"github.com/riverrun/msgbus/internal/log"
	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
)

// MetricsCollector receives workflow-step observations. Engines built
// without WithMetrics use a no-op implementation.
type MetricsCollector interface {
	StepCompleted(workflowName string)
	OptimisticConflict(workflowName string)
}

type noopMetrics struct{}

func (noopMetrics) StepCompleted(string)      {}
func (noopMetrics) OptimisticConflict(string) {}

// dispatcher holds what a started-by/when handler needs at invocation
// time: the serializer for snapshot/delta conversion, persistence for
// load/save, a logger for the no-delta and Discard trace logs, and metrics for step
// and conflict counts.
type dispatcher struct {
	serializer  bus.Serializer
	persistence Persistence
	logger      *slog.Logger
	metrics     MetricsCollector
}

// dispatchStartedBy creates a new instance of def in response to msg,
// invokes entry.step, and persists the result unless the step returns nil
// or a Discard delta.
func (d *dispatcher) dispatchStartedBy(ctx context.Context, def *Definition, entry startedByEntry, msg bus.Message, attrs bus.MessageAttributes) error {
	state := def.NewState()
	meta := state.WorkflowMeta()
	meta.WorkflowID = NewID()
	meta.Name = def.Name
	meta.Version = 0
	meta.Status = StatusRunning

	view, err := d.mergeDelta(def, state, nil, 0)
	if err != nil {
		return err
	}
	delta, err := entry.step(ctx, view, msg, attrs)
	if err != nil {
		return err
	}
	if delta == nil {
		log.Trace(d.logger, "workflow step returned no delta, nothing to persist", log.String("workflow", def.Name))
		return nil
	}

	merged, err := d.mergeDelta(def, state, delta, 1)
	if err != nil {
		return err
	}
	if merged.WorkflowMeta().Status == StatusDiscard {
		log.Trace(d.logger, "workflow step returned discard sentinel, dropping delta", log.String("workflow", def.Name))
		return nil
	}

	if err := d.persistence.SaveWorkflowState(ctx, def, merged); err != nil {
		if buserrors.IsOptimisticConcurrency(err) {
			d.metrics.OptimisticConflict(def.Name)
		}
		return err
	}
	d.metrics.StepCompleted(def.Name)
	return nil
}

// dispatchWhen loads every running instance of def matched by entry.lookup
// against msg, and advances each through entry.step in parallel, bounded by
// Go's default goroutine scheduling (one goroutine per matched instance;
// the number of concurrently running instances for a single message is
// expected to be small).
func (d *dispatcher) dispatchWhen(ctx context.Context, def *Definition, entry whenEntry, msg bus.Message, attrs bus.MessageAttributes) error {
	key := entry.lookup(msg, attrs)
	if isFalsy(key) {
		return nil
	}

	states, err := d.persistence.GetWorkflowState(ctx, def, entry.mapsTo, key, false)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, snapshot := range states {
		snapshot := snapshot
		group.Go(func() error {
			return d.dispatchOne(groupCtx, def, entry, snapshot, msg, attrs)
		})
	}
	return group.Wait()
}

func (d *dispatcher) dispatchOne(ctx context.Context, def *Definition, entry whenEntry, snapshot State, msg bus.Message, attrs bus.MessageAttributes) error {
	view, err := d.mergeDelta(def, snapshot, nil, snapshot.WorkflowMeta().Version)
	if err != nil {
		return err
	}
	delta, err := entry.step(ctx, view, msg, attrs)
	if err != nil {
		return err
	}
	if delta == nil {
		log.Trace(d.logger, "workflow step returned no delta, nothing to persist", log.String("workflow", def.Name))
		return nil
	}

	nextVersion := snapshot.WorkflowMeta().Version + 1
	merged, err := d.mergeDelta(def, snapshot, delta, nextVersion)
	if err != nil {
		return err
	}
	if merged.WorkflowMeta().Status == StatusDiscard {
		log.Trace(d.logger, "workflow step returned discard sentinel, dropping delta", log.String("workflow", def.Name))
		return nil
	}

	if err := d.persistence.SaveWorkflowState(ctx, def, merged); err != nil {
		if buserrors.IsOptimisticConcurrency(err) {
			d.metrics.OptimisticConflict(def.Name)
		}
		return err
	}
	d.metrics.StepCompleted(def.Name)
	return nil
}

// mergeDelta round-trips snapshot through the serializer's plain-map form,
// overlays delta's keys, forces $version to newVersion, and converts back
// to a fresh concrete instance via def.NewState — snapshot itself is never
// mutated.
func (d *dispatcher) mergeDelta(def *Definition, snapshot State, delta map[string]any, newVersion int) (State, error) {
	plain, err := d.serializer.ToPlain(snapshot)
	if err != nil {
		return nil, err
	}

	for k, v := range delta {
		plain[k] = v
	}
	plain["$version"] = newVersion

	ctor := func() any { return def.NewState() }
	restored, err := d.serializer.ToClass(plain, ctor)
	if err != nil {
		return nil, err
	}

	return restored.(State), nil
}

func isFalsy(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case int:
		return t == 0
	case int64:
		return t == 0
	}
	return false
}
