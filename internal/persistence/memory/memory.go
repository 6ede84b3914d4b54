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

// Package memory is an in-process saga.Persistence backend, for tests and
// single-process demos.
package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
	"github.com/riverrun/msgbus/pkg/saga"
)

// row is a workflow instance stored as its plain JSON-map form, keyed by
// $workflowId.
type row struct {
	id      string
	version int
	status  saga.Status
	plain   map[string]any
}

// Backend is an in-memory saga.Persistence implementation. One Backend can
// back any number of workflow definitions; rows are additionally indexed
// per-definition by table name.
type Backend struct {
	mu         sync.RWMutex
	serializer bus.Serializer
	tables     map[string]map[string]*row
}

// New creates an empty in-memory persistence backend using serializer for
// state/plain-map conversion.
func New(serializer bus.Serializer) *Backend {
	return &Backend{serializer: serializer, tables: make(map[string]map[string]*row)}
}

func (b *Backend) InitializeWorkflow(ctx context.Context, def *saga.Definition) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tables[def.Name]; !ok {
		b.tables[def.Name] = make(map[string]*row)
	}
	return nil
}

func (b *Backend) GetWorkflowState(ctx context.Context, def *saga.Definition, mapsTo string, key any, includeCompleted bool) ([]saga.State, error) {
	if key == nil || reflect.ValueOf(key).IsZero() {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	table := b.tables[def.Name]
	var out []saga.State

	for _, r := range table {
		if !includeCompleted && r.status != saga.StatusRunning {
			continue
		}
		if !fuzzyEqual(r.plain[mapsTo], key) {
			continue
		}

		ctor := func() any { return def.NewState() }
		restored, err := b.serializer.ToClass(r.plain, ctor)
		if err != nil {
			return nil, &buserrors.PersistenceError{Operation: "getWorkflowState", Cause: err}
		}
		out = append(out, restored.(saga.State))
	}

	return out, nil
}

func (b *Backend) SaveWorkflowState(ctx context.Context, def *saga.Definition, state saga.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta := state.WorkflowMeta()
	table := b.tables[def.Name]
	if table == nil {
		table = make(map[string]*row)
		b.tables[def.Name] = table
	}

	plain, err := b.serializer.ToPlain(state)
	if err != nil {
		return &buserrors.PersistenceError{Operation: "saveWorkflowState", Cause: err}
	}

	existing, ok := table[meta.WorkflowID]

	if meta.Version == 1 {
		if ok {
			return &buserrors.WorkflowStateNotFoundError{WorkflowID: meta.WorkflowID}
		}
		table[meta.WorkflowID] = &row{id: meta.WorkflowID, version: 1, status: meta.Status, plain: plain}
		return nil
	}

	oldVersion := meta.Version - 1
	if !ok || existing.version != oldVersion {
		return &buserrors.WorkflowStateNotFoundError{WorkflowID: meta.WorkflowID}
	}

	table[meta.WorkflowID] = &row{id: meta.WorkflowID, version: meta.Version, status: meta.Status, plain: plain}
	return nil
}

// fuzzyEqual compares a decoded-JSON value (often float64 for numbers)
// against a lookup key of whatever concrete type the caller used.
func fuzzyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}

	switch bv := b.(type) {
	case string:
		av, ok := a.(string)
		return ok && av == bv
	case int:
		return toFloat64(a) == float64(bv)
	case int64:
		return toFloat64(a) == float64(bv)
	case float64:
		return toFloat64(a) == bv
	default:
		return a == b
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
