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

import "context"

// Persistence stores and retrieves WorkflowState rows. Reference
// implementations live in internal/persistence/memory and
// internal/persistence/sql.
type Persistence interface {
	// InitializeWorkflow ensures storage exists for def's state type and
	// that each declared mapsTo field is efficiently queryable. Called
	// once per definition during Engine.Wire's init hook.
	InitializeWorkflow(ctx context.Context, def *Definition) error

	// GetWorkflowState returns the running instances of def whose mapsTo
	// field equals key, deserialized into concrete state values. Returns
	// an empty slice if key is the zero value for its type or if no rows
	// match. includeCompleted additionally returns StatusComplete rows.
	GetWorkflowState(ctx context.Context, def *Definition, mapsTo string, key any, includeCompleted bool) ([]State, error)

	// SaveWorkflowState upserts state, whose Version field already holds
	// the version being written (the dispatcher always merges a delta as
	// oldVersion+1 before calling Save). If that new version is 1, the
	// row is inserted. Otherwise it is updated only WHERE stored version
	// equals newVersion-1; zero rows affected means a concurrent writer
	// advanced the row first, and Save returns
	// *buserrors.WorkflowStateNotFoundError rather than silently
	// overwriting it.
	SaveWorkflowState(ctx context.Context, def *Definition, state State) error
}
