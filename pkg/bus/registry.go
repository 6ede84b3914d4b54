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

package bus

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/riverrun/msgbus/pkg/buserrors"
)

// Resolver routes a message that arrives without a recognized $name (an
// external message not authored against this bus) to a handler, by
// predicate rather than by name.
type Resolver struct {
	// Predicate decides whether Handler should receive msg.
	Predicate func(msg Message) bool

	// Handler processes matched messages.
	Handler Handler

	// Topic optionally names the transport topic/subject this resolver is
	// scoped to, for diagnostics only.
	Topic string

	// Constructor optionally supplies a MessageConstructor for the
	// resolver's message shape, so the serializer can deserialize it.
	Constructor MessageConstructor
}

type registration struct {
	constructor MessageConstructor
	handlers    []Handler
}

// Registry maps message names to ordered handler lists and holds
// predicate-based resolvers for unnamed messages. It is written only during
// Bus configuration/initialization and is safe for concurrent reads
// (Get, GetMessageNames, GetMessageConstructor) once initialization
// completes.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*registration
	resolvers []Resolver

	unhandledMu sync.Mutex
	unhandled   map[string]bool

	logger *slog.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName:    make(map[string]*registration),
		unhandled: make(map[string]bool),
		logger:    logger,
	}
}

// Register records handler against the message name produced by
// constructor(). If resolveWith is non-nil, it is additionally recorded as
// a resolver entry so unnamed messages can also reach handler.
//
// Register fails with HandlerAlreadyRegisteredError if handler (by
// underlying function identity) is already registered for this name.
func (r *Registry) Register(name string, constructor MessageConstructor, handler Handler, resolveWith func(Message) bool, topicIdentifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byName[name]
	if !ok {
		reg = &registration{constructor: constructor}
		r.byName[name] = reg
	}

	for _, existing := range reg.handlers {
		if sameHandler(existing, handler) {
			return &buserrors.HandlerAlreadyRegisteredError{MessageName: name}
		}
	}
	reg.handlers = append(reg.handlers, handler)

	if resolveWith != nil {
		r.resolvers = append(r.resolvers, Resolver{
			Predicate:   resolveWith,
			Handler:     handler,
			Topic:       topicIdentifier,
			Constructor: constructor,
		})
	}

	return nil
}

// sameHandler reports whether a and b wrap the same underlying function.
func sameHandler(a, b Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Get returns the ordered concatenation of handlers keyed by msg's name
// (if any are registered) followed by handlers whose resolver predicate
// accepts msg, in registration order. If the result is empty, msg's name
// is recorded once in the registry's diagnostic "unhandled messages" set.
func (r *Registry) Get(msg Message) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handler

	name := msg.MessageName()
	if reg, ok := r.byName[name]; ok {
		out = append(out, reg.handlers...)
	}

	for _, resolver := range r.resolvers {
		if resolver.Predicate(msg) {
			out = append(out, resolver.Handler)
		}
	}

	if len(out) == 0 {
		r.noteUnhandled(name)
	}

	return out
}

func (r *Registry) noteUnhandled(name string) {
	r.unhandledMu.Lock()
	defer r.unhandledMu.Unlock()

	if r.unhandled[name] {
		return
	}
	r.unhandled[name] = true
	r.logger.Warn("no handler registered for message", "message", name)
}

// UnhandledMessageNames returns the names that have been dispatched with no
// matching handler, in no particular order. Diagnostic only.
func (r *Registry) UnhandledMessageNames() []string {
	r.unhandledMu.Lock()
	defer r.unhandledMu.Unlock()

	names := make([]string, 0, len(r.unhandled))
	for name := range r.unhandled {
		names = append(names, name)
	}
	return names
}

// GetMessageNames returns the registered message names.
func (r *Registry) GetMessageNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// GetMessageConstructor returns the constructor registered for name, and
// false if name is unknown.
func (r *Registry) GetMessageConstructor(name string) (MessageConstructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return reg.constructor, true
}

// Reset clears all registrations. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName = make(map[string]*registration)
	r.resolvers = nil

	r.unhandledMu.Lock()
	r.unhandled = make(map[string]bool)
	r.unhandledMu.Unlock()
}
