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

	"github.com/riverrun/msgbus/pkg/bus"
)

// InitStep runs when a trigger message creates a new workflow instance.
// state is a copy of the freshly constructed instance (WorkflowID/Name set,
// Version 0) before any delta is applied; changes the step makes to it are
// discarded. InitStep returns a partial delta to merge into the instance,
// or an error to abort initialization (no state is persisted).
type InitStep func(ctx context.Context, state State, msg bus.Message, attrs bus.MessageAttributes) (map[string]any, error)

// Step runs against an immutable snapshot of an already-running instance:
// it receives a copy, and changes it makes to that copy are discarded.
// It returns a partial delta to merge and persist, or an error.
type Step func(ctx context.Context, snapshot State, msg bus.Message, attrs bus.MessageAttributes) (map[string]any, error)

// Lookup extracts a scalar correlation key from an inbound message, used to
// find the running instance(s) it should be dispatched to.
type Lookup func(msg bus.Message, attrs bus.MessageAttributes) any

type startedByEntry struct {
	constructor bus.MessageConstructor
	step        InitStep
}

type whenEntry struct {
	constructor bus.MessageConstructor
	step        Step
	lookup      Lookup
	mapsTo      string
}

// Definition declares one workflow: its concrete state constructor, the
// message that starts new instances, and the messages that advance running
// ones.
type Definition struct {
	Name     string
	NewState func() State

	startedBy map[string]startedByEntry
	when      map[string]whenEntry
}

// NewDefinition creates an empty workflow definition named name.
// newState must return a fresh zero-value instance of the concrete state
// struct (embedding Meta) used by every step registered on this
// definition.
func NewDefinition(name string, newState func() State) *Definition {
	return &Definition{
		Name:      name,
		NewState:  newState,
		startedBy: make(map[string]startedByEntry),
		when:      make(map[string]whenEntry),
	}
}

// OnStartedBy registers step as the initializer for new instances, run
// whenever a message produced by ctor arrives. Each such message starts a
// new instance; existing running instances are not consulted.
func (d *Definition) OnStartedBy(ctor bus.MessageConstructor, step InitStep) *Definition {
	name := ctor().MessageName()
	d.startedBy[name] = startedByEntry{constructor: ctor, step: step}
	return d
}

// OnWhen registers step to advance running instances whose mapsTo field
// equals lookup(msg, attrs), whenever a message produced by ctor arrives.
// mapsTo must name a field present on the JSON representation of the
// concrete state struct.
func (d *Definition) OnWhen(ctor bus.MessageConstructor, lookup Lookup, mapsTo string, step Step) *Definition {
	name := ctor().MessageName()
	d.when[name] = whenEntry{constructor: ctor, step: step, lookup: lookup, mapsTo: mapsTo}
	return d
}

// MapsToFields returns the distinct mapsTo field names declared across all
// of d's OnWhen entries, for persistence backends that need to provision
// an index per lookup field.
func (d *Definition) MapsToFields() []string {
	seen := make(map[string]bool, len(d.when))
	out := make([]string, 0, len(d.when))
	for _, entry := range d.when {
		if seen[entry.mapsTo] {
			continue
		}
		seen[entry.mapsTo] = true
		out = append(out, entry.mapsTo)
	}
	return out
}
