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

import "context"

// Transport is the abstract queue the bus core dispatches against. It owns
// retry policy entirely: visibility timeouts, max-receive counts, and
// dead-letter routing are transport concerns the bus never second-guesses.
//
// Implementations must be safe for concurrent use: ReadNextMessage may be
// called repeatedly by the dispatch loop's worker pool while Publish/Send
// are called from arbitrary handler goroutines.
type Transport interface {
	// Publish enqueues an event for broadcast to any number of handlers.
	Publish(ctx context.Context, event Message, attrs MessageAttributes) error

	// Send enqueues a command intended for exactly one handler.
	Send(ctx context.Context, command Message, attrs MessageAttributes) error

	// ReadNextMessage returns the next in-flight message, blocking up to an
	// implementation-defined bound. Returns (nil, nil) on a timed-out wait
	// with no message available, letting the dispatch loop yield and retry.
	ReadNextMessage(ctx context.Context) (*TransportMessage, error)

	// DeleteMessage acknowledges successful processing of raw, removing it
	// from the queue permanently.
	DeleteMessage(ctx context.Context, raw any) error

	// ReturnMessage releases raw back to the queue, incrementing its
	// seen-count and making it visible again after the transport's backoff.
	ReturnMessage(ctx context.Context, raw any) error

	// Start begins accepting Publish/Send/ReadNextMessage calls.
	Start(ctx context.Context) error

	// Stop releases transport resources. Safe to call after Start has
	// returned; does not cancel messages already leased to callers.
	Stop(ctx context.Context) error
}
