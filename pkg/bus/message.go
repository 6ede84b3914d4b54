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

// Package bus implements a transport-agnostic message bus: a dispatch loop
// that couples a pluggable Transport to user-registered handlers, a handler
// registry with name- and predicate-based routing, and a synchronous hook
// emitter for send/publish/error observability. The saga/workflow engine in
// package saga builds on top of this package's handler registry.
package bus

import "context"

// Message is anything with a stable $name discriminator. Commands and
// events are both Messages; the bus core treats them identically.
type Message interface {
	// MessageName returns the message's $name, used as the registry key
	// and the wire discriminator for serialization.
	MessageName() string
}

// MessageConstructor creates a zero-value instance of a registered message
// type, used by the serializer to know what to deserialize into.
type MessageConstructor func() Message

// MessageAttributes carries metadata alongside a message.
type MessageAttributes struct {
	// CorrelationID optionally ties together a chain of related messages.
	CorrelationID string

	// Attributes is metadata scoped to this message only.
	Attributes map[string]any

	// StickyAttributes is metadata that propagates to every message
	// subsequently sent or published from within the handler that
	// receives this message.
	StickyAttributes map[string]any
}

// Handler processes a single message. Returning a non-nil error causes the
// dispatch loop to return the message to the transport for redelivery.
type Handler func(ctx context.Context, msg Message, attrs MessageAttributes) error

// TransportMessage pairs a decoded domain Message with the transport's raw,
// transport-specific envelope. Its lifetime is bounded by an in-flight lease
// held by the transport until Delete or Return is called.
type TransportMessage struct {
	// ID is the transport's identifier for this in-flight message.
	ID string

	// Raw is the transport-specific envelope (e.g. an SQS receipt handle,
	// a NATS JetStream message). Opaque to the bus core.
	Raw any

	// Message is the decoded domain message.
	Message Message

	// Attributes is the deserialized metadata that accompanied the message.
	Attributes MessageAttributes

	// SeenCount is how many times the transport has delivered this
	// message, starting at 1 for the first delivery.
	SeenCount int
}
