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

// Package saga is the workflow engine: starting workflows from trigger
// messages, matching them to running instances via lookup keys, and
// advancing them through user-supplied step functions with optimistic
// concurrency on save.
package saga

// Status is the lifecycle stage of a WorkflowState.
type Status string

const (
	// StatusRunning is the only status under which a state is matched by
	// an onWhen lookup.
	StatusRunning Status = "Running"

	// StatusComplete terminates the workflow. The row is kept but no
	// longer surfaces in active lookups.
	StatusComplete Status = "Complete"

	// StatusDiscard is never persisted: a step returning a delta with
	// this status tells the dispatcher to drop the delta entirely.
	StatusDiscard Status = "Discard"
)

// Meta is the persistent envelope every concrete workflow state embeds.
// Field names follow the $-prefixed wire names from the reference
// relational layout's JSON column.
type Meta struct {
	WorkflowID string `json:"$workflowId"`
	Name       string `json:"$name"`
	Version    int    `json:"$version"`
	Status     Status `json:"$status"`
}

// WorkflowMeta returns m itself, satisfying State by promotion once
// embedded in a concrete state struct.
func (m *Meta) WorkflowMeta() *Meta { return m }

// State is any concrete workflow state struct that embeds Meta.
type State interface {
	WorkflowMeta() *Meta
}

// NewID is overridden in tests; production code should leave it as
// uuid.NewString.
var NewID = defaultNewID
