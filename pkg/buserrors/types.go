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

// Package buserrors defines the typed error taxonomy shared by the bus core
// and the saga engine, so callers can branch on failure kind with errors.As
// instead of string matching.
package buserrors

import "fmt"

// HandlerAlreadyRegisteredError is returned by the registry when the same
// underlying handler function is registered twice for the same message
// name (compared by function pointer identity, not by value).
type HandlerAlreadyRegisteredError struct {
	// MessageName is the $name the handler was registered against.
	MessageName string
}

func (e *HandlerAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("handler already registered for message %q", e.MessageName)
}

// LifecycleViolationError is returned when a bus operation is attempted from
// a state that does not permit it (e.g. initialize twice, start while
// already started).
type LifecycleViolationError struct {
	// Operation is the method that was called (e.g. "initialize", "start").
	Operation string

	// State is the bus's current lifecycle state at the time of the call.
	State string
}

func (e *LifecycleViolationError) Error() string {
	return fmt.Sprintf("cannot %s: bus is %s", e.Operation, e.State)
}

// SerializationError wraps a failure to serialize or deserialize a message
// or workflow state.
type SerializationError struct {
	// Name is the message or workflow name involved, if known.
	Name string

	// Cause is the underlying marshal/unmarshal error.
	Cause error
}

func (e *SerializationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("serialization failed for %q: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("serialization failed: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// TransportError wraps a failure from the underlying Transport
// implementation (publish, send, read, delete, or return).
type TransportError struct {
	// Operation is the transport method that failed.
	Operation string

	// Cause is the underlying transport error.
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Operation, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// PersistenceError wraps a failure from the underlying Persistence
// implementation that is not an optimistic-concurrency conflict.
type PersistenceError struct {
	// Operation is the persistence method that failed.
	Operation string

	// Cause is the underlying storage error.
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Operation, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// WorkflowStateNotFoundError is returned by SaveWorkflowState when the
// version on the in-memory snapshot no longer matches the persisted version
// (another dispatch already advanced or completed the instance).
// GetWorkflowState does not return it: a lookup with no match returns an
// empty slice.
type WorkflowStateNotFoundError struct {
	// WorkflowID is the instance id, if known.
	WorkflowID string

	// MapsTo is a lookup value that matched no instance; Error reports it
	// when WorkflowID is empty. The save-conflict path sets only WorkflowID.
	MapsTo string
}

func (e *WorkflowStateNotFoundError) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("workflow state not found or stale version: %s", e.WorkflowID)
	}
	return fmt.Sprintf("no running workflow instance maps to %q", e.MapsTo)
}

// WorkflowAlreadyRegisteredError is returned when Engine.Register is called
// twice with definitions that share a name.
type WorkflowAlreadyRegisteredError struct {
	// WorkflowName is the $name that was registered more than once.
	WorkflowName string
}

func (e *WorkflowAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("workflow %q already registered", e.WorkflowName)
}

// PersistenceNotConfiguredError is returned when a workflow definition is
// registered but the engine was built without a Persistence implementation;
// Engine.Wire's init hook returns it from the bus's Initialize.
type PersistenceNotConfiguredError struct {
	// WorkflowName is the $name of the workflow definition that needs storage.
	WorkflowName string
}

func (e *PersistenceNotConfiguredError) Error() string {
	return fmt.Sprintf("workflow %q requires persistence, but none is configured", e.WorkflowName)
}

// HandlerError wraps a non-nil error returned by a registered handler or
// workflow step function, preserving the message name it was handling.
type HandlerError struct {
	// MessageName is the $name of the message being dispatched.
	MessageName string

	// Cause is the error returned by the handler.
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q failed: %v", e.MessageName, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}
